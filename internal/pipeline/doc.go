// Package pipeline is the composition root of the reconstruction tool.
//
// It sequences the point cloud, Poisson and mesh stages, hands each stage
// the snapshot produced by the previous one and records a StageMetrics
// entry per stage. Progress reaches callers through an Observer, never
// through direct logging. The pipeline does not own geometry; it delegates
// to pointcloud, poisson, meshops, meshio and compress.
//
// Nothing here writes files. Callers persist the returned mesh or buffer
// once a run has succeeded, so a failed run leaves no partial output.
package pipeline
