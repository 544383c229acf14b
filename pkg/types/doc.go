// Package types defines the Sample record shared by the producer agent, the
// relay server and any Go-side viewer.
//
// Wire format (one WebSocket text frame per sample):
//
//	{"stamp": 12.5, "values": [0.1, -3.2]}
//
// stamp is seconds elapsed since the relay started; values keeps the field
// order of the input record. The legacy single-value shape
// {"stamp": …, "value": "…"} is not produced.
package types
