// Package storage is the root of recordstore's disk-based record storage.
//
// Tables are paged files of fixed-size blocks. Every record carries a 20 byte
// header (id plus a free-list link) followed by its column values, and blocks
// are slotted containers of such records.
//
// # Sub-packages
//
//   - [recordstore/pkg/storage/block]    – slotted block with a fixed layout
//     (records at a constant stride) and a variable layout (a slot directory
//     at the front, record bytes packed from the end).
//   - [recordstore/pkg/storage/pagefile] – paged file: checksummed header,
//     block I/O, an optional ristretto block cache and an advisory lock.
//   - [recordstore/pkg/storage/access]   – record managers: Heap and HeapVar
//     (free list of tombstones, compaction), Hash (bucket chains) and Ordered
//     (sorted primary file, unsorted extension, external merge reorganize).
//
// # File layout
//
// A file starts with a 37 byte preamble holding the header length and its
// xxhash, then the key=value header, then the blocks. Header fields are
// written at fixed width so the header never changes length; block n lives
// at preamble + header + n × block size.
package storage
