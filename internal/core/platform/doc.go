// Package platform provides pure functions for talking to the CasaOS-style
// app platform.
//
// The platform's status API has no documented contract. Responses seen in
// the wild come in several layouts, so decoding is modeled as a small tagged
// union (Shape) with one typed extractor per layout, tried in a fixed order.
//
// # Functions
//
//   - Status: decode a status body into a Snapshot (DecodeStatus)
//   - Naming: metadata locations and compose resource ownership
//     (MetadataPath, ContainerBelongsToApp, NetworkBelongsToApp)
//
// # Usage
//
// The imperative shell (internal/shell/installer) fetches raw bodies through
// the container runtime and hands them to these functions.
//
//	snap := platform.DecodeStatus(body)
//	if st, ok := snap.Get(appID); ok && st.Running() {
//	    // ...
//	}
package platform
