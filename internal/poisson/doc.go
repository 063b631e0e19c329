// Package poisson reconstructs a triangle mesh from an oriented point cloud
// by solving for an implicit function whose gradient best matches the
// sample normals and extracting one of its level sets.
//
// The solve runs coarse to fine over grids aligned with the octree depths.
// The coarsest grid covers the whole domain; finer grids keep only a band
// of nodes around the samples and take their outer boundary values from the
// level below. Extraction uses marching tetrahedra on the finest grid.
package poisson
