// Package colview is a viewer for columnar data files.
//
// colview reads Apache Parquet and Apache ORC files, optionally wrapped in
// a whole-file compression container, and prints their metadata, schema
// or rows. Row queries run through an adaptive pipeline that projects the
// selected columns and then picks one of three strategies:
//
//   - passthrough: rows stream straight from the file when no sort is given
//   - top-k: a bounded heap keeps the first N rows for small limits
//   - external: a merge sort spills sorted runs to disk and merges them
//     with a bounded fan-in, so memory stays fixed for any file size
//
// # Quick Start
//
//	colview metadata data.parquet
//	colview schema --format tree data.orc
//	colview view data.parquet --columns id,name --sort age:desc,name --limit 20
//
// # Key Packages
//
//	cmd/colview        - Command line interface
//	internal/pipeline  - Projection, strategy selection and execution
//	internal/sorter    - Comparator, top-k engine and external merge sort
//	internal/output    - Table, vertical, NDJSON and schema renderers
//	pkg/formats        - Parquet and ORC readers and file metadata
//	pkg/compression    - Container codecs for input files and spill runs
//	pkg/models         - Schema, value and batch model
//	pkg/config         - Layered configuration
//	pkg/errors         - Structured error handling
//	pkg/logger         - Structured logging
//	pkg/mmap           - Memory-mapped file input
package colview
