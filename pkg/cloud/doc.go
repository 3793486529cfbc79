/*
Package cloud abstracts the cloud vendor APIs the executor drives.

Provider is the capability set: read instance state, stop/start/reboot, wait
for a state, change the instance type, and describe/modify the root volume.
EC2Provider implements it on the AWS SDK v2; Azure and GCP resolve to a
provider whose every call fails with ErrUnsupportedProvider.

DefaultResolver turns a server and its cloud account into a Provider: it
decrypts the account credentials, picks the region (server, then account, then
us-east-1) and wraps the result with Instrument so every call produces a span
and provider call metrics.
*/
package cloud
