// Package config reads and writes visionflow graph documents.
//
// A graph document lists the operations of one engine, the factory type and
// configuration of each, optional property values, and the connections
// between their sockets:
//
//	version: "1"
//	engine:
//	  name: demo
//	  stop_timeout: 5s
//	operations:
//	  camera:
//	    type: frame-source
//	    config: {width: 64, height: 48, channels: 1, fps: 30, max_frames: 100}
//	  binarize:
//	    type: threshold
//	    properties: {level: 100}
//	  sink:
//	    type: collector
//	connections:
//	  - {from: camera.frame, to: binarize.image}
//	  - {from: binarize.image, to: sink.in}
//
// Documents may be YAML or JSON. Both are converted to JSON, checked against
// the embedded JSON schema (see Schema) and then validated with
// Graph.Validate, which enforces what the schema cannot: valid names,
// connections that reference declared operations, and at most one source per
// input socket.
//
// Building an engine from a Graph is the engine package's job; this package
// only knows the document.
package config
