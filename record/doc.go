// Package record implements the mpa wire framing: magic-number validation,
// fixed-record counting, camera and point-cloud metadata headers, and the
// H264/H265 encoded-video frame classifier.
//
// Every record mpa carries over a data FIFO begins with the 32-bit magic
// number [Magic]. Fixed-format streams are a flat run of identical
// records; variable-format streams (camera, point cloud) are one metadata
// record immediately followed by a payload whose length the metadata
// itself describes.
package record
