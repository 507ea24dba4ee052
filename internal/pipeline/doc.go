// Package pipeline defines the core types and collaborator interfaces shared
// across the content pipeline: tracking records, extracted section trees,
// medical facts, chunks, and the narrow contracts (fetcher, stores, publisher,
// clock, id generation) the orchestration layer is wired with.
package pipeline
