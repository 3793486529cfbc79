package main

import (
	"encoding/json"
	"fmt"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage tracked servers",
}

var serverPutCmd = &cobra.Command{
	Use:   "put ID",
	Short: "Create or replace a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		server := &types.Server{ID: args[0]}
		server.WorkspaceID, _ = f.GetString("workspace")
		server.Name, _ = f.GetString("name")
		provider, _ := f.GetString("provider")
		server.Provider = types.Provider(provider)
		server.InstanceID, _ = f.GetString("instance-id")
		server.InstanceType, _ = f.GetString("instance-type")
		server.Region, _ = f.GetString("region")
		server.CloudAccountID, _ = f.GetString("account")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.PutServer(cmd.Context(), server); err != nil {
			return err
		}
		fmt.Printf("✓ Server %s stored\n", server.ID)
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		servers, err := store.ListServers(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(servers)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage cloud accounts",
}

var accountPutCmd = &cobra.Command{
	Use:   "put ID",
	Short: "Create or replace a cloud account, encrypting its credentials",
	Long: `Create or replace a cloud account. Credentials are encrypted with
ENCRYPTION_KEY before they are stored.

Example:
  downtime-scheduler account put acct-1 --region eu-west-1 \
    --access-key-id AKIA... --secret-access-key ...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		account := &types.CloudAccount{ID: args[0]}
		account.WorkspaceID, _ = f.GetString("workspace")
		provider, _ := f.GetString("provider")
		account.Provider = types.Provider(provider)
		account.Region, _ = f.GetString("region")

		doc, err := credentialsDocument(cmd)
		if err != nil {
			return err
		}
		creds, err := credentialManager()
		if err != nil {
			return err
		}
		account.Credentials, err = creds.Encrypt(doc)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.PutCloudAccount(cmd.Context(), account); err != nil {
			return err
		}
		fmt.Printf("✓ Cloud account %s stored\n", account.ID)
		return nil
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Work with encrypted credentials",
}

var credentialsEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Print the encrypted form of an AWS credentials document",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := credentialsDocument(cmd)
		if err != nil {
			return err
		}
		creds, err := credentialManager()
		if err != nil {
			return err
		}
		out, err := creds.Encrypt(doc)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	serverCmd.AddCommand(serverPutCmd)
	serverCmd.AddCommand(serverListCmd)
	accountCmd.AddCommand(accountPutCmd)
	credentialsCmd.AddCommand(credentialsEncryptCmd)

	sf := serverPutCmd.Flags()
	sf.String("workspace", "default", "Workspace ID")
	sf.String("name", "", "Display name")
	sf.String("provider", string(types.ProviderAWS), "Cloud provider (aws, azure, gcp)")
	sf.String("instance-id", "", "Provider instance ID (required)")
	sf.String("instance-type", "", "Current instance type")
	sf.String("region", "", "Region; falls back to the account region")
	sf.String("account", "", "Cloud account ID")
	_ = serverPutCmd.MarkFlagRequired("instance-id")

	af := accountPutCmd.Flags()
	af.String("workspace", "default", "Workspace ID")
	af.String("provider", string(types.ProviderAWS), "Cloud provider")
	af.String("region", "", "Default region")

	for _, c := range []*cobra.Command{accountPutCmd, credentialsEncryptCmd} {
		c.Flags().String("access-key-id", "", "AWS access key ID")
		c.Flags().String("secret-access-key", "", "AWS secret access key")
		c.Flags().String("session-token", "", "AWS session token")
		_ = c.MarkFlagRequired("access-key-id")
		_ = c.MarkFlagRequired("secret-access-key")
	}
}

// credentialsDocument builds the JSON document that is encrypted and stored
func credentialsDocument(cmd *cobra.Command) ([]byte, error) {
	doc := map[string]string{}
	doc["accessKeyId"], _ = cmd.Flags().GetString("access-key-id")
	doc["secretAccessKey"], _ = cmd.Flags().GetString("secret-access-key")
	if token, _ := cmd.Flags().GetString("session-token"); token != "" {
		doc["sessionToken"] = token
	}
	if region, _ := cmd.Flags().GetString("region"); region != "" {
		doc["region"] = region
	}
	return json.Marshal(doc)
}
