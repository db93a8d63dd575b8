// Package tubesvc is the service layer over the tube engine: request
// validation, wire-row conversion (integer timestamps in 100ns units and
// both state renderings), consumer sessions with release-on-close, and
// CEL filtering for the task listing endpoint.
package tubesvc
