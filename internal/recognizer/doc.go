// Package recognizer wraps a bounded pool of sherpa-onnx offline
// transducer recognizer instances, letting multiple segments decode
// concurrently while keeping the number of live ONNX sessions fixed.
package recognizer
