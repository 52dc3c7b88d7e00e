// Package cache stores synthesized segment audio so repeated sentences skip
// the synthesis engine. A bounded in-memory LRU sits in front of an optional
// zstd-compressed disk tier that survives restarts.
package cache
