// Package domain models Belgian municipality-level COVID-19 case data and the
// boundary geometry it is mapped onto.
//
// # Data Sources
//
// Case counts come from the Sciensano open data portal
// (https://epistat.sciensano.be/Data/COVID19BE_CASES_MUNI.json): a JSON array
// with one record per municipality per day that had at least one reported case.
// Days without cases are simply absent, so the series is sparse.
//
// Boundaries come from Statbel's statistical sectors
// (https://statbel.fgov.be/en/open-data), a zipped GeoJSON FeatureCollection
// in Belgian Lambert 72 (EPSG:31370). Sectors are much finer than
// municipalities and are dissolved by municipality code and by region name.
//
// # Conventions
//
// Municipality codes:
//
//	NIS5 / REFNIS codes, five digits, e.g. "11001" (Aartselaar).
//	Sources emit them as numbers or strings; both normalise to the
//	zero-padded five-character form at ingestion. See [NormalizeCode].
//
// Censored counts:
//
//	Counts below five are published as the literal "<5" for privacy.
//	They decode to the midpoint 2.5 before any arithmetic. See [DecodeCaseCount].
//
// Dates:
//
//	"YYYY-MM-DD". Parsed into [Date] so ordering never depends on string sort.
//
// # Grid
//
// [Reconcile] expands the sparse observations into the full Cartesian product
// of observed municipalities and observed dates, zero-filling the gaps and
// attaching each municipality's centroid. [Smooth] then computes a trailing
// seven-sample mean per municipality. The first six samples of every
// municipality are assigned 0 rather than a partial-window mean, which keeps
// output parity with the original pandas rolling(7) + fillna(0) behaviour.
package domain
