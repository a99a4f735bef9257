package vectorindex

// kMeans runs Lloyd's algorithm over points (each a flat []float32 of
// the given width) for k centroids and iters iterations, returning the
// final centroids. Centroids are seeded from the first k points,
// duplicates included (sufficient for the deterministic training this package needs
// — callers supply an already-shuffled or naturally-diverse sample).
func kMeans(points []Vector, k, iters int) []Vector {
	if len(points) == 0 || k <= 0 {
		return nil
	}
	if k > len(points) {
		k = len(points)
	}

	centroids := make([]Vector, k)
	for i := 0; i < k; i++ {
		centroids[i] = append(Vector(nil), points[i]...)
	}

	dim := len(points[0])
	assignment := make([]int, len(points))

	for iter := 0; iter < iters; iter++ {
		changed := false
		for pi, p := range points {
			best, bestDist := 0, squaredL2(p, centroids[0])
			for ci := 1; ci < k; ci++ {
				d := squaredL2(p, centroids[ci])
				if d < bestDist {
					best, bestDist = ci, d
				}
			}
			if assignment[pi] != best {
				changed = true
			}
			assignment[pi] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for ci := range sums {
			sums[ci] = make([]float64, dim)
		}
		for pi, p := range points {
			ci := assignment[pi]
			counts[ci]++
			for d := 0; d < dim; d++ {
				sums[ci][d] += float64(p[d])
			}
		}
		for ci := 0; ci < k; ci++ {
			if counts[ci] == 0 {
				continue // keep the previous centroid; an empty cluster contributes nothing to recompute
			}
			newCentroid := make(Vector, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = float32(sums[ci][d] / float64(counts[ci]))
			}
			centroids[ci] = newCentroid
		}

		if !changed && iter > 0 {
			break
		}
	}
	return centroids
}

// nearest returns the index of the centroid closest to v by squared L2 distance.
func nearest(v Vector, centroids []Vector) int {
	best, bestDist := 0, squaredL2(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		d := squaredL2(v, centroids[i])
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
