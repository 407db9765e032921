// Package splat holds the data model shared by the render driver.
//
// Responsibilities: image tensors and their 8-bit quantisation, camera
// views, the Gaussian point set, background colours and the dataset-type
// tag that decides how ground truth is read from a view.
//
// Dependency rule: splat depends on nothing else in internal/.
package splat
