// Package pointcloud owns the point-cloud stages of the reconstruction
// pipeline.
//
// Responsibilities: voxel downsampling, k-d tree neighbour queries, PCA
// normal estimation and minimum spanning tree normal orientation.
// Key types: SpatialIndex, NormalParams, OrientStats.
//
// Dependency rule: pointcloud may depend on geom and parallel, never on
// poisson, meshops or pipeline.
package pointcloud
