// Package services defines the shared service-layer contracts: capability
// interfaces for transcription, translation, and speech synthesis, the
// ServiceError classification providers return, the retry/fallback decision
// policy, and the fallback chains that drive it.
//
// Provider implementations live in subpackages and return *ServiceError so
// the chains can distinguish outages and throttling (retry, then fall back)
// from rejected input (abort). Error markers and Wrap give stage code a
// uniform way to tag failures for the job error history.
package services
