// Copyright 2024 The gVisor Authors.
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

package kernel

import (
	"github.com/misttech/mistos-vfs/pkg/sentry/context"
)

// contextID is the kernel package's type for context.Context.Value keys.
type contextID int

const (
	// CtxKernel is a Context.Value key for a Kernel.
	CtxKernel contextID = iota
)

// KernelFromContext returns the Kernel in which ctx is executing, or nil if
// there is no such Kernel.
func KernelFromContext(ctx context.Context) *Kernel {
	if v := ctx.Value(CtxKernel); v != nil {
		return v.(*Kernel)
	}
	return nil
}

// WithKernel returns a copy of ctx that executes in k.
func WithKernel(ctx context.Context, k *Kernel) context.Context {
	return context.WithValue(ctx, CtxKernel, k)
}
