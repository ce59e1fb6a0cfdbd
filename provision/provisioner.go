// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/assetpipe/storage"
)

// Profile selects which parameters a create request may carry.
type Profile string

const (
	ProfileSelfManaged Profile = "self-managed"
	ProfileServerless  Profile = "serverless"
)

// ParseProfile converts a configuration value into a Profile.
// An empty value selects ProfileSelfManaged.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "", ProfileSelfManaged:
		return ProfileSelfManaged, nil
	case ProfileServerless:
		return ProfileServerless, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// Self-managed settings.
const (
	DefaultNumberOfShards   = 1
	DefaultNumberOfReplicas = 1
)

// Provisioner ensures collections exist before they are written to.
type Provisioner struct {
	store   storage.DocumentStore
	profile Profile
	logger  *slog.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner) error

// WithProfile sets the provisioning profile.
// Default is ProfileSelfManaged.
func WithProfile(profile Profile) Option {
	return func(p *Provisioner) error {
		if _, err := ParseProfile(string(profile)); err != nil {
			return err
		}
		p.profile = profile
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewProvisioner creates a Provisioner over a document store.
func NewProvisioner(store storage.DocumentStore, opts ...Option) (*Provisioner, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	p := &Provisioner{
		store:   store,
		profile: ProfileSelfManaged,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Profile returns the profile create requests are built with.
func (p *Provisioner) Profile() Profile {
	return p.profile
}

// Ensure creates the collection with schema unless it already exists, and
// reports whether it was created. Unlisted fields are always accepted.
// An existing collection is left untouched, even when its mapping differs.
func (p *Provisioner) Ensure(ctx context.Context, name string, schema storage.Mapping) (bool, error) {
	exists, err := p.store.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		p.logger.Info("collection exists", "collection", name)
		return false, nil
	}

	schema.Dynamic = storage.DynamicTrue
	req := storage.CreateRequest{Name: name, Mapping: schema}
	if p.profile == ProfileSelfManaged {
		req.Settings = &storage.Settings{
			NumberOfShards:   DefaultNumberOfShards,
			NumberOfReplicas: DefaultNumberOfReplicas,
		}
	}

	err = p.store.Create(ctx, req)
	if errors.Is(err, storage.ErrCollectionExists) {
		// Created concurrently since the existence check.
		p.logger.Info("collection exists", "collection", name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create collection %s: %w", name, err)
	}
	p.logger.Info("created collection", "collection", name, "profile", p.profile)
	return true, nil
}
