package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

const (
	labelOrg = "bws_org"
	labelKey = "bws_key"
)

// GCPAdapter implements Adapter against Google Cloud Secret Manager. The
// secrets-management API the spec describes is opaque; this adapter is
// the one concrete binding the core depends on, grounded on the teacher's
// GCPSecretManagerClient (cloud.google.com/go/secretmanager).
type GCPAdapter struct {
	projectID string
	org       string
	logger    *logrus.Entry

	once   sync.Once
	client *secretmanager.Client
	authErr error
}

// NewGCPAdapter builds an adapter for one tenant, scoped to orgContext (a
// label-safe org identifier, e.g. from OrgFingerprint). Every list/sync
// call this adapter makes is filtered to orgContext, so one GCP project
// shared across tenants never leaks another tenant's secrets into this
// one's cache. It does not touch the network until Authenticate is
// called (spec §4.1).
func NewGCPAdapter(projectID string, orgContext string, logger *logrus.Entry) *GCPAdapter {
	return &GCPAdapter{projectID: projectID, org: orgContext, logger: logger}
}

// Authenticate opens the underlying gRPC client exactly once per adapter
// lifetime. persistedStatePath is accepted for interface compatibility
// (spec §5 volatile auth-state file) but GCP's client authenticates via
// Workload Identity / ADC and never touches that path.
func (a *GCPAdapter) Authenticate(ctx context.Context, token string, persistedStatePath string) error {
	a.once.Do(func() {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			a.authErr = fmt.Errorf("400 Bad Request: Access token is not in a valid format: %w", err)
			return
		}
		a.client = client
		a.logger.WithField("project", a.projectID).Debug("upstream client authenticated")
	})
	return a.authErr
}

// ListAll enumerates every secret labeled with orgContext.
func (a *GCPAdapter) ListAll(ctx context.Context, orgContext string) ([]secretmeta.Entry, error) {
	if a.client == nil {
		return nil, fmt.Errorf("400 Bad Request: Access token is not in a valid format")
	}
	req := &secretmanagerpb.ListSecretsRequest{
		Parent: fmt.Sprintf("projects/%s", a.projectID),
		Filter: fmt.Sprintf("labels.%s=%s", labelOrg, orgContext),
	}
	it := a.client.ListSecrets(ctx, req)

	var entries []secretmeta.Entry
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translateGRPCError(err)
		}
		entry, ok, err := a.readLatestVersion(ctx, secret)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// SyncSince lists every secret for the org and reports whether any
// version was created after watermark. The spec's conservative protocol
// treats any change as cache-invalidating (§4.5), so callers only need
// the boolean plus the full current set, not a diff.
func (a *GCPAdapter) SyncSince(ctx context.Context, watermark time.Time) (SyncResult, error) {
	entries, changed, err := a.listWithChangeDetection(ctx, watermark)
	if err != nil {
		return SyncResult{}, err
	}
	if !changed {
		return SyncResult{Changed: false}, nil
	}
	return SyncResult{Changes: entries, Changed: true}, nil
}

func (a *GCPAdapter) listWithChangeDetection(ctx context.Context, watermark time.Time) ([]secretmeta.Entry, bool, error) {
	if a.client == nil {
		return nil, false, fmt.Errorf("400 Bad Request: Access token is not in a valid format")
	}
	req := &secretmanagerpb.ListSecretsRequest{
		Parent: fmt.Sprintf("projects/%s", a.projectID),
		Filter: fmt.Sprintf("labels.%s=%s", labelOrg, a.org),
	}
	it := a.client.ListSecrets(ctx, req)

	var entries []secretmeta.Entry
	changed := false
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, false, translateGRPCError(err)
		}
		entry, ok, versionTime, err := a.readLatestVersionWithTime(ctx, secret)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		entries = append(entries, entry)
		if versionTime.After(watermark) {
			changed = true
		}
	}
	return entries, changed, nil
}

// GetByID fetches the latest version of a single secret by its short
// name (the spec's "id").
func (a *GCPAdapter) GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error) {
	if a.client == nil {
		return secretmeta.Entry{}, false, fmt.Errorf("400 Bad Request: Access token is not in a valid format")
	}
	secret, err := a.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s", a.projectID, id),
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return secretmeta.Entry{}, false, nil
		}
		return secretmeta.Entry{}, false, translateGRPCError(err)
	}
	entry, ok, err := a.readLatestVersion(ctx, secret)
	return entry, ok, err
}

func (a *GCPAdapter) readLatestVersion(ctx context.Context, secret *secretmanagerpb.Secret) (secretmeta.Entry, bool, error) {
	entry, ok, _, err := a.readLatestVersionWithTime(ctx, secret)
	return entry, ok, err
}

func (a *GCPAdapter) readLatestVersionWithTime(ctx context.Context, secret *secretmanagerpb.Secret) (secretmeta.Entry, bool, time.Time, error) {
	versionName := secret.Name + "/versions/latest"

	version, err := a.client.GetSecretVersion(ctx, &secretmanagerpb.GetSecretVersionRequest{Name: versionName})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return secretmeta.Entry{}, false, time.Time{}, nil
		}
		return secretmeta.Entry{}, false, time.Time{}, translateGRPCError(err)
	}

	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: versionName})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return secretmeta.Entry{}, false, time.Time{}, nil
		}
		return secretmeta.Entry{}, false, time.Time{}, translateGRPCError(err)
	}

	id := shortID(secret.Name)
	key := secret.Labels[labelKey]
	if key == "" {
		key = id
	}

	entry := secretmeta.Entry{
		Meta: secretmeta.Meta{Key: key, ID: id},
		Raw:  string(resp.Payload.Data),
	}
	versionTime := version.CreateTime.AsTime()
	return entry, true, versionTime, nil
}

func translateGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("error sending request for url: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("401 Unauthorized: %s", st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("429 Too Many Requests: %s", st.Message())
	case codes.NotFound:
		return fmt.Errorf("404 Not Found: Resource not found: %s", st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("Invalid command value: UUID parsing failed: %s", st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("error sending request for url: %s", st.Message())
	default:
		return err
	}
}

// shortID extracts the trailing secret id from a fully qualified GCP
// secret resource name (projects/P/secrets/ID).
func shortID(name string) string {
	const marker = "/secrets/"
	idx := indexOf(name, marker)
	if idx < 0 {
		return name
	}
	return name[idx+len(marker):]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// OrgFingerprint derives a stable label-safe org identifier from a
// tenant fingerprint; GCP label values are restricted to a small
// character set, so the hex fingerprint is truncated and rehashed to fit.
func OrgFingerprint(fingerprint string) string {
	h := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(h[:])[:32]
}
