// Package engine wires the retrieval components into one explicitly
// constructed registry. New builds every component from configuration and
// restores the persisted index; Close releases them.
package engine
