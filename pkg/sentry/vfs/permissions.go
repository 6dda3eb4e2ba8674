// Copyright 2019 The gVisor Authors.
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

package vfs

import (
	"github.com/misttech/mistos-vfs/pkg/abi/linux"
	"github.com/misttech/mistos-vfs/pkg/errors/linuxerr"
	"github.com/misttech/mistos-vfs/pkg/sentry/kernel/auth"
)

// AccessTypes is a bitmask of Unix file permissions.
type AccessTypes uint16

// Bits in AccessTypes.
const (
	MayRead  AccessTypes = 4
	MayWrite AccessTypes = 2
	MayExec  AccessTypes = 1
)

// GenericCheckPermissions checks that creds has the given access rights on a
// file with the given mode and owner, subject to the rules of
// fs/namei.c:generic_permission(). The superuser is treated as holding
// CAP_DAC_OVERRIDE.
func GenericCheckPermissions(creds *auth.Credentials, ats AccessTypes, mode linux.FileMode, owner auth.FileOwner) error {
	// Check permission bits.
	perms := uint16(mode.Permissions())
	if creds.EffectiveKUID == owner.UID {
		perms >>= 6
	} else if creds.InGroup(owner.GID) {
		perms >>= 3
	}
	if uint16(ats)&perms == uint16(ats) {
		return nil
	}

	// CAP_DAC_OVERRIDE allows arbitrary access to directories, read/write
	// access to non-directory files, and execute access to non-directory files
	// for which at least one execute bit is set.
	if creds.EffectiveKUID == auth.RootKUID {
		if mode.IsDir() || ats&MayExec == 0 || mode&0111 != 0 {
			return nil
		}
	}
	return linuxerr.EACCES
}
