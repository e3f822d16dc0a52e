package astieit

import (
	"sync"

	"github.com/asticode/go-astikit"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AdmitResult is the outcome of admitting a section into an EITRegistry
type AdmitResult uint8

// Admit results
const (
	// The section was unknown and is now the stored instance for its key
	AdmitResultAdmitted AdmitResult = iota + 1
	// A section with the same key was already stored, only its version and CRC32 may have been updated
	AdmitResultMerged
)

// String implements the fmt.Stringer interface
func (r AdmitResult) String() string {
	switch r {
	case AdmitResultAdmitted:
		return "admitted"
	case AdmitResultMerged:
		return "merged"
	}
	return "unknown"
}

// VersionPolicy decides whether an incoming version number supersedes the stored one
type VersionPolicy uint8

// Version policies
const (
	// Incoming version must be numerically greater. Version 0 following version 31 is ignored.
	VersionPolicyGreater VersionPolicy = iota
	// Version numbers are 5 bits serial numbers: incoming is newer when it is 1 to 15 steps ahead,
	// modulo 32. Version 0 following version 31 is newer.
	VersionPolicyWraparound
)

// ParseVersionPolicy parses "greater" or "wraparound"
func ParseVersionPolicy(s string) (VersionPolicy, bool) {
	switch s {
	case "", "greater":
		return VersionPolicyGreater, true
	case "wraparound":
		return VersionPolicyWraparound, true
	}
	return 0, false
}

// String implements the fmt.Stringer interface
func (p VersionPolicy) String() string {
	if p == VersionPolicyWraparound {
		return "wraparound"
	}
	return "greater"
}

func (p VersionPolicy) isNewer(stored, incoming uint8) bool {
	if p == VersionPolicyWraparound {
		d := (incoming - stored) & 0x1f
		return d > 0 && d < 16
	}
	return incoming > stored
}

// EITRegistry is the long lived collection of decoded sections, unique by EITSectionKey
// Repeats of a stored section never replace its events: only its version number and CRC32 follow the
// freshest version seen. Every method is safe for concurrent use, lookup then insert or update being a
// single transaction.
type EITRegistry struct {
	l        astikit.CompleteLogger
	m        *sync.Mutex
	metrics  *Metrics
	policy   VersionPolicy
	sections map[EITSectionKey]*EITSection
}

// NewEITRegistry creates a new registry
func NewEITRegistry(opts ...func(*EITRegistry)) *EITRegistry {
	r := &EITRegistry{
		m:        &sync.Mutex{},
		sections: make(map[EITSectionKey]*EITSection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EITRegistryOptVersionPolicy returns the option to set the version policy
func EITRegistryOptVersionPolicy(p VersionPolicy) func(*EITRegistry) {
	return func(r *EITRegistry) {
		r.policy = p
	}
}

// EITRegistryOptMetrics returns the option to set the metrics
func EITRegistryOptMetrics(m *Metrics) func(*EITRegistry) {
	return func(r *EITRegistry) {
		r.metrics = m
	}
}

// EITRegistryOptLogger returns the option to set the logger
func EITRegistryOptLogger(l astikit.StdLogger) func(*EITRegistry) {
	return func(r *EITRegistry) {
		r.l = astikit.AdaptStdLogger(l)
	}
}

func (r *EITRegistry) log() astikit.CompleteLogger {
	if r.l != nil {
		return r.l
	}
	return logger
}

// Admit stores s if its key is unknown. Otherwise the stored section is merged with s's header and s is
// dropped. updated is true when the stored version number and CRC32 have changed.
// The registry owns s once admitted, the caller must not modify it anymore.
func (r *EITRegistry) Admit(s *EITSection) (res AdmitResult, updated bool) {
	r.m.Lock()
	defer r.m.Unlock()

	// Known section
	k := s.Key()
	if stored, ok := r.sections[k]; ok {
		res, updated = AdmitResultMerged, r.mergeHeaderUnlocked(stored, s.EITSectionHeader)
		r.metrics.incAdmission(res, updated)
		return
	}

	// Store
	r.sections[k] = s
	r.metrics.incAdmission(AdmitResultAdmitted, false)
	r.metrics.setRegistrySections(len(r.sections))
	r.log().Debugf("astieit: admitted %s with version %d and %d events", k, s.VersionNumber, len(s.Events))
	return AdmitResultAdmitted, false
}

// MergeHeader merges a header into the stored section sharing its key without decoding any event. ok is
// false when no such section is stored, in which case the caller is expected to decode the section and
// Admit it.
func (r *EITRegistry) MergeHeader(h EITSectionHeader) (updated, ok bool) {
	r.m.Lock()
	defer r.m.Unlock()

	var stored *EITSection
	if stored, ok = r.sections[h.Key()]; !ok {
		return
	}
	updated = r.mergeHeaderUnlocked(stored, h)
	r.metrics.incAdmission(AdmitResultMerged, updated)
	return
}

// mergeHeaderUnlocked updates the version number and CRC32 of the stored section when the incoming
// version is newer. Events are left untouched.
func (r *EITRegistry) mergeHeaderUnlocked(stored *EITSection, h EITSectionHeader) bool {
	if !r.policy.isNewer(stored.VersionNumber, h.VersionNumber) {
		return false
	}
	r.log().Debugf("astieit: %s version %d => %d", h.Key(), stored.VersionNumber, h.VersionNumber)
	stored.VersionNumber = h.VersionNumber
	stored.CRC32 = h.CRC32
	return true
}

// Replace stores s whatever the version of the section stored under the same key, and returns the
// previous section if any. It is meant for callers who re-decode a section on version change and need
// its events refreshed.
func (r *EITRegistry) Replace(s *EITSection) (previous *EITSection) {
	r.m.Lock()
	defer r.m.Unlock()
	k := s.Key()
	previous = r.sections[k]
	r.sections[k] = s
	r.metrics.setRegistrySections(len(r.sections))
	return
}

// Get returns a snapshot of the section stored under k
func (r *EITRegistry) Get(k EITSectionKey) (*EITSection, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	s, ok := r.sections[k]
	if !ok {
		return nil, false
	}
	return s.snapshot(), true
}

// Len returns the number of stored sections
func (r *EITRegistry) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.sections)
}

// Keys returns the keys of the stored sections, sorted
func (r *EITRegistry) Keys() []EITSectionKey {
	r.m.Lock()
	ks := maps.Keys(r.sections)
	r.m.Unlock()
	slices.SortFunc(ks, func(a, b EITSectionKey) bool { return a.Less(b) })
	return ks
}

// Sections returns snapshots of the stored sections sorted by table id, transport stream id, service id
// and section number
func (r *EITRegistry) Sections() (ss []*EITSection) {
	r.m.Lock()
	defer r.m.Unlock()
	ss = make([]*EITSection, 0, len(r.sections))
	for _, s := range r.sections {
		ss = append(ss, s.snapshot())
	}
	slices.SortFunc(ss, func(a, b *EITSection) bool { return a.Key().Less(b.Key()) })
	return
}

// snapshot copies the header so that it can be read while the registry merges newer versions. Events
// are shared since they are never modified once decoded.
func (s *EITSection) snapshot() *EITSection {
	c := *s
	return &c
}
