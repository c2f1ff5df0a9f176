/*
Package traceir translates per-block Ethereum execution traces into the
canonical per-transaction intermediate representation consumed by an
arithmetization/proving engine.

A trace payload bundles proof fragments of the pre-state trie, contract code
blobs, and each transaction's recorded state operations. Translation runs as
five sequential phases: decode the payload, rebuild a sparse state trie from
the proof set, resolve referenced code hashes to bytecode, replay every
transaction's operations in order while verifying declared roots, and emit
one self-contained generation unit per transaction.

Blocks are independent: each owns its tries, is processed single-threadedly,
and either completes the full sequence or fails before anything downstream
can observe a half-applied state. Failures are typed (decode, trie
consistency, missing witness, replay mismatch) and always surface to the
caller; the pipeline never retries.
*/
package traceir
