package template

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"xconfess-notify/pkg/xerrors"
)

// Version is one registered body of a template key.
type Version struct {
	Version      string
	Subject      string
	HTML         string
	Text         string
	RequiredVars []string
}

// RolloutPolicy controls which version of a template key recipients see.
// CanaryPercent is the share of recipients, in [0,100], routed to
// CanaryVersion; everyone else gets ActiveVersion.
type RolloutPolicy struct {
	ActiveVersion string
	CanaryVersion string
	CanaryPercent int
}

// Registry holds versioned template bodies and their rollout policies.
type Registry struct {
	templates map[string][]Version
	policies  map[string]RolloutPolicy
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string][]Version),
		policies:  make(map[string]RolloutPolicy),
	}
}

func (r *Registry) Register(key string, versions ...Version) {
	r.templates[key] = append(r.templates[key], versions...)
}

func (r *Registry) SetPolicy(key string, p RolloutPolicy) {
	r.policies[key] = p
}

func (r *Registry) Policy(key string) (RolloutPolicy, bool) {
	p, ok := r.policies[key]
	return p, ok
}

// Lookup returns the registered body for (key, version).
func (r *Registry) Lookup(key, version string) (*Version, error) {
	versions, ok := r.templates[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrTemplateNotFound, key)
	}
	for i := range versions {
		if versions[i].Version == version {
			return &versions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", xerrors.ErrTemplateVersionNotFound, key, version)
}

// SetActiveVersion promotes a registered version to active. Operator action.
func (r *Registry) SetActiveVersion(key, version string) error {
	if _, err := r.Lookup(key, version); err != nil {
		return err
	}
	p := r.policies[key]
	p.ActiveVersion = version
	r.policies[key] = p
	return nil
}

// ResolveVersion deterministically picks the template version for a recipient.
//
// The recipient bucket is the first 4 bytes of
// HMAC-SHA256(key=templateKey, msg=lowercased-trimmed recipient), read
// big-endian, mod 100. The byte interpretation is fixed: bucket assignment
// must be reproducible across processes and implementations.
func ResolveVersion(templateKey, recipient string, policy *RolloutPolicy) (version string, isCanary bool) {
	if policy == nil {
		return "v1", false
	}
	if policy.CanaryVersion == "" || policy.CanaryPercent <= 0 {
		return policy.ActiveVersion, false
	}
	if policy.CanaryPercent >= 100 {
		// Full promotion is a graduated rollout, not a canary.
		return policy.CanaryVersion, false
	}
	if Bucket(templateKey, recipient) < policy.CanaryPercent {
		return policy.CanaryVersion, true
	}
	return policy.ActiveVersion, false
}

// Bucket maps (templateKey, recipient) to an integer in [0,100).
func Bucket(templateKey, recipient string) int {
	mac := hmac.New(sha256.New, []byte(templateKey))
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(recipient))))
	sum := mac.Sum(nil)
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{var}} placeholders, validating required variables first.
func Render(v *Version, vars map[string]string) (subject, html, text string, err error) {
	for _, key := range v.RequiredVars {
		if _, ok := vars[key]; !ok {
			return "", "", "", fmt.Errorf("%w: %s (template %s)", xerrors.ErrMissingTemplateVar, key, v.Version)
		}
	}
	replace := func(s string) string {
		return varPattern.ReplaceAllStringFunc(s, func(m string) string {
			k := varPattern.FindStringSubmatch(m)[1]
			return vars[k]
		})
	}
	return replace(v.Subject), replace(v.HTML), replace(v.Text), nil
}
