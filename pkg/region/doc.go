// Package region finds connected pixel sets by color similarity.
//
// Two detectors share one flood-fill core:
//
//   - MagicWand scans the whole raster for every 4-connected component whose
//     color is within a Manhattan RGB distance of the seed color, so one click
//     can select a color scattered across the image.
//   - SmartSelect grows only the component under the seed using Euclidean RGB
//     distance, optionally with a tolerance derived from the seed's
//     neighborhood.
//
// Every component stops growing at a per-region pixel cap, which bounds the
// worst-case cost of a click. A miss at the seed is reported as ErrNoRegion.
//
// Coordinates are in the input image's coordinate space.
package region
