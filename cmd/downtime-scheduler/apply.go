package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cloudevy/downtime-scheduler/pkg/credentials"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/schedules"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply cloud accounts, servers and schedules from a YAML file. Documents
are separated by "---" and applied in file order, so accounts should come
before the servers that use them.

Example file:
  kind: CloudAccount
  metadata:
    name: acct-1
    workspace: ws-1
  spec:
    region: eu-west-1
    credentials:
      accessKeyId: AKIA...
      secretAccessKey: ...
  ---
  kind: Server
  metadata:
    name: srv-1
    workspace: ws-1
  spec:
    instanceId: i-0abc
    instanceType: t3.large
    cloudAccountId: acct-1
  ---
  kind: Schedule
  metadata:
    name: nightly-stop
    workspace: ws-1
  spec:
    serverId: srv-1
    action: stop
    rrule: DAILY_9PM
    timezone: Europe/Dublin`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is one document of an apply file
type Resource struct {
	Kind     string           `yaml:"kind"`
	Metadata ResourceMetadata `yaml:"metadata"`
	Spec     yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

type accountSpec struct {
	Provider    string            `yaml:"provider"`
	Region      string            `yaml:"region"`
	Credentials map[string]string `yaml:"credentials"`
}

type serverSpec struct {
	Name           string `yaml:"name"`
	Provider       string `yaml:"provider"`
	InstanceID     string `yaml:"instanceId"`
	InstanceType   string `yaml:"instanceType"`
	Region         string `yaml:"region"`
	CloudAccountID string `yaml:"cloudAccountId"`
}

type scheduleSpec struct {
	ServerID string        `yaml:"serverId"`
	Action   string        `yaml:"action"`
	RRule    string        `yaml:"rrule"`
	Timezone string        `yaml:"timezone"`
	Enabled  *bool         `yaml:"enabled"`
	Scaling  types.Scaling `yaml:"scaling"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	a := &applier{store: store, schedules: schedules.NewService(store, rules.New())}
	for _, r := range resources {
		if r.Kind == "CloudAccount" && a.creds == nil {
			if a.creds, err = credentialManager(); err != nil {
				return err
			}
		}
	}
	return a.apply(cmd.Context(), resources)
}

// decodeResources reads every YAML document of r
func decodeResources(r io.Reader) ([]Resource, error) {
	dec := yaml.NewDecoder(r)
	var out []Resource
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if res.Kind == "" {
			continue
		}
		if res.Metadata.Name == "" {
			return nil, fmt.Errorf("%s document without metadata.name", res.Kind)
		}
		if res.Metadata.Workspace == "" {
			res.Metadata.Workspace = "default"
		}
		out = append(out, res)
	}
	return out, nil
}

type applier struct {
	store     storage.Store
	schedules *schedules.Service
	creds     *credentials.Manager
}

func (a *applier) apply(ctx context.Context, resources []Resource) error {
	for i := range resources {
		r := &resources[i]
		var err error
		switch r.Kind {
		case "CloudAccount":
			err = a.applyAccount(ctx, r)
		case "Server":
			err = a.applyServer(ctx, r)
		case "Schedule":
			err = a.applySchedule(ctx, r)
		default:
			err = fmt.Errorf("unsupported resource kind: %s", r.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.Kind, r.Metadata.Name, err)
		}
	}
	return nil
}

func (a *applier) applyAccount(ctx context.Context, r *Resource) error {
	var spec accountSpec
	if err := r.Spec.Decode(&spec); err != nil {
		return err
	}
	if _, err := credentials.ParseAWS(mustJSON(spec.Credentials)); err != nil {
		return err
	}
	if a.creds == nil {
		return errors.New("no credentials manager configured")
	}
	encrypted, err := a.creds.Encrypt(mustJSON(spec.Credentials))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	account := &types.CloudAccount{
		ID:          r.Metadata.Name,
		WorkspaceID: r.Metadata.Workspace,
		Provider:    types.Provider(orValue(spec.Provider, string(types.ProviderAWS))),
		Region:      spec.Region,
		Credentials: encrypted,
	}
	if err := a.store.PutCloudAccount(ctx, account); err != nil {
		return err
	}
	fmt.Printf("✓ Cloud account applied: %s\n", account.ID)
	return nil
}

func (a *applier) applyServer(ctx context.Context, r *Resource) error {
	var spec serverSpec
	if err := r.Spec.Decode(&spec); err != nil {
		return err
	}
	if spec.InstanceID == "" {
		return errors.New("instanceId is required")
	}

	server := &types.Server{
		ID:             r.Metadata.Name,
		WorkspaceID:    r.Metadata.Workspace,
		Name:           orValue(spec.Name, r.Metadata.Name),
		Provider:       types.Provider(orValue(spec.Provider, string(types.ProviderAWS))),
		InstanceID:     spec.InstanceID,
		InstanceType:   spec.InstanceType,
		Region:         spec.Region,
		CloudAccountID: spec.CloudAccountID,
	}
	// Keep the last observed status across re-applies
	if existing, err := a.store.GetServer(ctx, server.ID); err == nil {
		server.Status = existing.Status
	}
	if err := a.store.PutServer(ctx, server); err != nil {
		return err
	}
	fmt.Printf("✓ Server applied: %s\n", server.ID)
	return nil
}

// applySchedule updates the schedule with the same name on the same server,
// or creates it.
func (a *applier) applySchedule(ctx context.Context, r *Resource) error {
	var spec scheduleSpec
	if err := r.Spec.Decode(&spec); err != nil {
		return err
	}
	workspace := r.Metadata.Workspace
	rule := resolveRule(spec.RRule)
	action := types.Action(spec.Action)

	existing, err := a.schedules.List(ctx, workspace, spec.ServerID)
	if err != nil {
		return err
	}
	for _, s := range existing {
		if s.Name != r.Metadata.Name {
			continue
		}
		scaling := spec.Scaling
		if scaling.OriginalInstanceType == "" {
			scaling.OriginalInstanceType = s.Scaling.OriginalInstanceType
		}
		updated, err := a.schedules.Update(ctx, workspace, s.ID, schedules.UpdateRequest{
			Action:   &action,
			RRule:    &rule,
			Timezone: &spec.Timezone,
			Enabled:  spec.Enabled,
			Scaling:  &scaling,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Schedule updated: %s (ID: %s)\n", updated.Name, updated.ID)
		return nil
	}

	created, err := a.schedules.Create(ctx, workspace, schedules.CreateRequest{
		ServerID: spec.ServerID,
		Name:     r.Metadata.Name,
		Action:   action,
		RRule:    rule,
		Timezone: spec.Timezone,
		Scaling:  spec.Scaling,
	})
	if err != nil {
		return err
	}
	if spec.Enabled != nil && !*spec.Enabled {
		if created, err = a.schedules.Toggle(ctx, workspace, created.ID); err != nil {
			return err
		}
	}
	fmt.Printf("✓ Schedule created: %s (ID: %s)\n", created.Name, created.ID)
	return nil
}

func mustJSON(v map[string]string) []byte {
	b, _ := json.Marshal(v)
	return b
}

func orValue(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
