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

// Package vfs implements the directory-entry cache and the mount layer that
// path resolution walks.
//
// A DirectoryEntry binds a name to a backing Node. Entries hold a strong
// reference on their parent and are held only weakly by their parent's
// children cache, so every live entry can reach its filesystem root while
// unreferenced subtrees are reclaimed. Mounts overlay FileSystems onto entries;
// a NamespaceLocation pairs a mount context with an entry.
//
// Lock order:
//
//	FileSystem.renameMu
//	  DirectoryEntry.childrenMu
//	    Second DirectoryEntry.childrenMu, iff entry IDs are ascending (lockChildren)
//	      Mount.mu
//	        DirectoryEntry.stateMu
//	          Further DirectoryEntry.stateMu, in ascending entry ID order (lockStates)
//	            entryCache locks
//
// No stateMu is ever held while acquiring a childrenMu. References on
// DirectoryEntries are never dropped while a childrenMu is held, since
// destroying an entry acquires its parent's childrenMu.
package vfs
