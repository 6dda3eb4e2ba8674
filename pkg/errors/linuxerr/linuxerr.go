// Copyright 2021 The gVisor Authors.
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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	"fmt"

	"github.com/misttech/mistos-vfs/pkg/errors"
	"golang.org/x/sys/unix"
)

// The following errors are semantically identical to Errno of type
// unix.Errno. Since their type is distinct (*errors.Error) they are not
// directly comparable; use Equals, or compare Errno() against a unix.Errno.
var (
	noError *errors.Error = nil

	EPERM        = errors.New(unix.EPERM, "operation not permitted")
	ENOENT       = errors.New(unix.ENOENT, "no such file or directory")
	EIO          = errors.New(unix.EIO, "I/O error")
	EBADF        = errors.New(unix.EBADF, "bad file number")
	EAGAIN       = errors.New(unix.EAGAIN, "try again")
	ENOMEM       = errors.New(unix.ENOMEM, "out of memory")
	E2BIG        = errors.New(unix.E2BIG, "argument list too long")
	EACCES       = errors.New(unix.EACCES, "permission denied")
	EBUSY        = errors.New(unix.EBUSY, "device or resource busy")
	EEXIST       = errors.New(unix.EEXIST, "file exists")
	EXDEV        = errors.New(unix.EXDEV, "cross-device link")
	ENODEV       = errors.New(unix.ENODEV, "no such device")
	ENOTDIR      = errors.New(unix.ENOTDIR, "not a directory")
	EISDIR       = errors.New(unix.EISDIR, "is a directory")
	EINVAL       = errors.New(unix.EINVAL, "invalid argument")
	ENOSPC       = errors.New(unix.ENOSPC, "no space left on device")
	EROFS        = errors.New(unix.EROFS, "read-only file system")
	EMLINK       = errors.New(unix.EMLINK, "too many links")
	ERANGE       = errors.New(unix.ERANGE, "math result not representable")
	ENAMETOOLONG = errors.New(unix.ENAMETOOLONG, "file name too long")
	ENOSYS       = errors.New(unix.ENOSYS, "invalid system call number")
	ENOTEMPTY    = errors.New(unix.ENOTEMPTY, "directory not empty")
	ELOOP        = errors.New(unix.ELOOP, "too many symbolic links encountered")
	ENODATA      = errors.New(unix.ENODATA, "no data available")
	EOPNOTSUPP   = errors.New(unix.EOPNOTSUPP, "operation not supported on transport endpoint")
	ESTALE       = errors.New(unix.ESTALE, "stale file handle")
	EREMOTEIO    = errors.New(unix.EREMOTEIO, "remote I/O error")
)

var errorTable = map[unix.Errno]*errors.Error{}

func init() {
	for _, e := range []*errors.Error{
		EPERM, ENOENT, EIO, EBADF, E2BIG, EAGAIN, ENOMEM, EACCES, EBUSY,
		EEXIST, EXDEV, ENODEV, ENOTDIR, EISDIR, EINVAL, ENOSPC, EROFS,
		EMLINK, ERANGE, ENAMETOOLONG, ENOSYS, ENOTEMPTY, ELOOP, ENODATA,
		EOPNOTSUPP, ESTALE, EREMOTEIO,
	} {
		errorTable[e.Errno()] = e
	}
}

// ErrorFromUnix returns the *errors.Error for a unix.Errno. It returns nil
// for a zero errno and panics for an errno that has no entry.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	e, ok := errorTable[err]
	if !ok {
		panic(fmt.Sprintf("invalid error requested with errno: %d", int(err)))
	}
	return e
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}
