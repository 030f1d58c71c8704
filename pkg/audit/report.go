// Package audit assembles sealed audit reports and exportable report packs
// for evidence items.
//
// Report generation is read-only: it never appends custody events or
// touches stored state.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/canonicalize"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"github.com/google/uuid"
)

var (
	// ErrDigestMismatch is returned when a report's digest does not match its content.
	ErrDigestMismatch = errors.New("audit: report digest mismatch")
	// ErrUnsealed is returned for a report that carries no digest.
	ErrUnsealed = errors.New("audit: report is not sealed")
)

// Generator builds audit reports from committed ledger state.
type Generator struct {
	reader ledger.Reader
	authz  *authz.Engine
	alg    canonicalize.Algorithm
	clock  func() time.Time
}

// NewGenerator creates a report generator over r, gated by az.
func NewGenerator(r ledger.Reader, az *authz.Engine) *Generator {
	return &Generator{
		reader: r,
		authz:  az,
		alg:    canonicalize.SHA256,
		clock:  time.Now,
	}
}

// WithAlgorithm selects the report digest algorithm.
func (g *Generator) WithAlgorithm(alg canonicalize.Algorithm) *Generator {
	g.alg = alg
	return g
}

// WithClock overrides the generation time source.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// GenerateAuditReport assembles and seals the dossier for one evidence item
// from a single consistent read of the ledger. The caller identity in ctx
// must hold generate_report.
func (g *Generator) GenerateAuditReport(ctx context.Context, evidenceID string) (*contracts.AuditReport, error) {
	id, err := g.authz.AuthorizeContext(ctx, authz.PermGenerateReport)
	if err != nil {
		return nil, err
	}

	d, err := g.reader.Dossier(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	ev := d.Evidence

	report := &contracts.AuditReport{
		ID:          "RPT-" + uuid.NewString(),
		Evidence:    ev,
		Events:      nonNil(d.Events),
		Analyses:    nonNil(d.Analyses),
		Reviews:     nonNil(d.Reviews),
		GeneratedAt: g.clock().UTC().Round(0),
		GeneratedBy: id.SubjectID,
		Verified:    ev.IntegrityVerified,
		ChainValid:  ledger.VerifyChain(d.Events, ev.HeadHash) == nil,
	}
	if err := Seal(report, g.alg); err != nil {
		return nil, err
	}
	return report, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Seal sets the report's digest over its canonical form with the digest
// field cleared.
func Seal(report *contracts.AuditReport, alg canonicalize.Algorithm) error {
	if alg == "" {
		alg = canonicalize.SHA256
	}
	report.DigestAlgorithm = string(alg)
	d, err := reportDigest(report, alg)
	if err != nil {
		return err
	}
	report.Digest = d
	return nil
}

// VerifyReport recomputes the digest of a sealed report.
func VerifyReport(report *contracts.AuditReport) error {
	if report == nil || report.Digest == "" {
		return ErrUnsealed
	}
	alg, _, err := canonicalize.SplitDigest(report.Digest)
	if err != nil {
		return err
	}
	if report.DigestAlgorithm != string(alg) {
		return fmt.Errorf("%w: algorithm %q does not match digest prefix %q", ErrDigestMismatch, report.DigestAlgorithm, alg)
	}
	want, err := reportDigest(report, alg)
	if err != nil {
		return err
	}
	if want != report.Digest {
		return fmt.Errorf("%w: have %s, computed %s", ErrDigestMismatch, report.Digest, want)
	}
	return nil
}

func reportDigest(report *contracts.AuditReport, alg canonicalize.Algorithm) (string, error) {
	c := *report
	c.Digest = ""
	d, err := canonicalize.Digest(alg, &c)
	if err != nil {
		return "", fmt.Errorf("digest report: %w", err)
	}
	return d, nil
}
