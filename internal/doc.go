// Package internal contains the implementation packages for stitch.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - render: Token scanning and parameter substitution with HTML escaping
//   - params: Placeholder parameter gathering and batched token values
//   - alias: Module base detection and alias prefix resolution
//   - fetch: Fragment retrieval over HTTP, file:// URLs and a site directory
//   - dom: Document parsing, selection and serialization
//   - fragment: Fragment installation with fresh executable scripts
//   - script: JavaScript host for page and fragment scripts
//   - ready: Readiness runs and includes:ready notification
//   - include: The engine that drives a whole page's include pass
//   - server: Preview server with live reload and an error overlay
//   - watcher: File system monitoring with debouncing
//   - config, errors, logging, version: Ambient support
//
// # Include Pipeline
//
// A page flows through the packages in one direction:
//
//   - include finds placeholders in a dom.Document
//   - alias resolves each placeholder's fragment reference to a URL
//   - fetch retrieves the fragment text
//   - params gathers the placeholder's values and render substitutes them
//   - fragment swaps the placeholder for the rendered nodes
//   - ready records the run and notifies listeners once every include settles
//
// The server and the render command both drive this pipeline. The server
// leaves scripts to the browser. The render command runs them through script.
package internal
