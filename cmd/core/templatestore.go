package main

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/auth"
	"github.com/signetco/corefw/internal/platform"
)

// templateState is the CBOR-encoded content of the fingerprint
// template file. Fingerprint template blobs run well past
// kv.Store's MaxValueLen (52 bytes, sized for retry counters and
// secrets, not biometric data), so templates get their own file
// instead of a kv.Store entry, the same durability idiom
// platform.OSFile already provides for the unlock store.
type templateState struct {
	Templates  []auth.Template
	LastUpdate uint32
	HaveUpdate bool
	EnrolledFW string
}

// fileTemplateStore is a file-backed auth.TemplateStore.
type fileTemplateStore struct {
	mu    sync.Mutex
	file  *platform.OSFile
	state templateState
}

func openFileTemplateStore(file *platform.OSFile) (*fileTemplateStore, error) {
	s := &fileTemplateStore{file: file}
	data, err := file.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := cbor.Unmarshal(data, &s.state); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileTemplateStore) save() error {
	data, err := cbor.Marshal(s.state)
	if err != nil {
		return err
	}
	return s.file.WriteAll(data)
}

func (s *fileTemplateStore) Templates() []auth.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Template(nil), s.state.Templates...)
}

func (s *fileTemplateStore) SaveTemplate(idx int, t auth.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx >= len(s.state.Templates) {
		s.state.Templates = append(s.state.Templates, auth.Template{})
	}
	s.state.Templates[idx] = t
	return s.save()
}

func (s *fileTemplateStore) LastUpdateTimestamp() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastUpdate, s.state.HaveUpdate
}

func (s *fileTemplateStore) SetLastUpdateTimestamp(ts uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastUpdate, s.state.HaveUpdate = ts, true
	return s.save()
}

func (s *fileTemplateStore) RecordEnrollFirmwareVersion(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.EnrolledFW = version
	return s.save()
}
