// Package geom owns the data model shared by every reconstruction stage.
//
// Key types: Point3D, PointCloud, Vertex, Triangle, Mesh.
//
// Snapshots are treated as immutable once a stage has returned them: every
// stage builds a new PointCloud or Mesh and never writes into its input.
// Helpers in this package follow the same rule and return fresh values.
//
// Dependency rule: geom depends on nothing inside the module. Stage
// packages (pointcloud, poisson, meshops) import geom, never the reverse.
package geom
