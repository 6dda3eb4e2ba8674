// Copyright 2018 Google LLC
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

package auth

// KUID is a user ID in the root user namespace.
type KUID uint32

// KGID is a group ID in the root user namespace.
type KGID uint32

const (
	// RootKUID is the KUID of the superuser.
	RootKUID KUID = 0

	// RootKGID is the KGID of the superuser's group.
	RootKGID KGID = 0

	// NobodyKUID is the KUID used for identities that cannot be mapped.
	NobodyKUID KUID = 65534

	// NobodyKGID is the KGID used for identities that cannot be mapped.
	NobodyKGID KGID = 65534
)

// Credentials contains information required to authorize privileged
// operations and to attribute ownership of new filesystem objects.
//
// Credentials are immutable once shared; use Fork to obtain a copy that may
// be modified.
type Credentials struct {
	RealKUID      KUID
	EffectiveKUID KUID
	RealKGID      KGID
	EffectiveKGID KGID

	// ExtraKGIDs are the supplementary groups.
	ExtraKGIDs []KGID
}

// NewRootCredentials returns Credentials with all IDs set to the superuser's.
func NewRootCredentials() *Credentials {
	return &Credentials{
		RealKUID:      RootKUID,
		EffectiveKUID: RootKUID,
		RealKGID:      RootKGID,
		EffectiveKGID: RootKGID,
	}
}

// NewUserCredentials returns Credentials for the given user and groups.
func NewUserCredentials(kuid KUID, kgid KGID, extraKGIDs []KGID) *Credentials {
	return &Credentials{
		RealKUID:      kuid,
		EffectiveKUID: kuid,
		RealKGID:      kgid,
		EffectiveKGID: kgid,
		ExtraKGIDs:    append([]KGID(nil), extraKGIDs...),
	}
}

// NewAnonymousCredentials returns Credentials with nobody IDs and no
// supplementary groups.
func NewAnonymousCredentials() *Credentials {
	return NewUserCredentials(NobodyKUID, NobodyKGID, nil)
}

// Fork generates an identical copy of a set of credentials.
func (c *Credentials) Fork() *Credentials {
	nc := *c
	nc.ExtraKGIDs = append([]KGID(nil), c.ExtraKGIDs...)
	return &nc
}

// InGroup returns true if c is in group kgid.
func (c *Credentials) InGroup(kgid KGID) bool {
	if c.EffectiveKGID == kgid {
		return true
	}
	for _, extraKGID := range c.ExtraKGIDs {
		if extraKGID == kgid {
			return true
		}
	}
	return false
}

// FileOwner returns the ownership a new file created with c should receive.
func (c *Credentials) FileOwner() FileOwner {
	return FileOwner{UID: c.EffectiveKUID, GID: c.EffectiveKGID}
}

// FileOwner is the owner of a filesystem object.
type FileOwner struct {
	UID KUID
	GID KGID
}
