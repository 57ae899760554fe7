package pipeline

import (
	"sync"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/ptr"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// matchGroup is the set of Base A and Base B rows sharing one (key
// identifier, composite key value) after mark exclusion.
type matchGroup struct {
	keyID    string
	compVal  string
	aIDs     []int64
	bIDs     []int64
}

// groupProcessorOpts carries everything a group needs to classify itself,
// independent of any other group — the contract in §4.10.
type groupProcessorOpts struct {
	valueColA string
	valueColB string
	inverter  bool
	limite    float64
	aRows     map[int64]map[string]any // shared read-only row cache
	bRows     map[int64]map[string]any
	jobID     int64
}

// groupResult is what one group classification produces: the result rows
// for every member, plus the ids to add to the matched sets.
type groupResult struct {
	rows       []domain.ResultRow
	matchedA   []int64
	matchedB   []int64
}

// classifyGroup implements §4.7 step 4: sum, round, diff, classify, emit.
func classifyGroup(g matchGroup, opts groupProcessorOpts) groupResult {
	var somaA, somaB float64

	for _, id := range g.aIDs {
		somaA += floatValue(opts.aRows[id][opts.valueColA])
	}
	for _, id := range g.bIDs {
		v := floatValue(opts.bRows[id][opts.valueColB])
		if opts.inverter {
			v = -v
		}
		somaB += v
	}
	somaA = round6(somaA)
	somaB = round6(somaB)

	hasA := len(g.aIDs) > 0
	hasB := len(g.bIDs) > 0

	diff := round6(somaA - somaB)
	absDiff := diff
	if absDiff < 0 {
		absDiff = -absDiff
	}

	const eps = 1e-6
	status, grupo := classify(hasA, hasB, diff, absDiff, eps, opts.limite)

	res := groupResult{}
	valueA, valueB := somaA, somaB
	if !hasA {
		valueA = 0
	}
	if !hasB {
		valueB = 0
	}

	keyValues := map[string]string{g.keyID: g.compVal}

	for _, id := range g.aIDs {
		row := opts.aRows[id]
		snapshot, _ := sqlite.MarshalRowSnapshot(row)
		chave := g.keyID
		res.rows = append(res.rows, domain.ResultRow{
			JobID: opts.jobID, Chave: &chave, Status: status, Grupo: grupo,
			ARowID: ptr.To(id), AValues: &snapshot,
			ValueA: valueA, ValueB: valueB, Difference: diff,
			KeyValues: keyValues,
		})
		res.matchedA = append(res.matchedA, id)
	}
	for _, id := range g.bIDs {
		row := opts.bRows[id]
		snapshot, _ := sqlite.MarshalRowSnapshot(row)
		chave := g.keyID
		res.rows = append(res.rows, domain.ResultRow{
			JobID: opts.jobID, Chave: &chave, Status: status, Grupo: grupo,
			BRowID: ptr.To(id), BValues: &snapshot,
			ValueA: valueA, ValueB: valueB, Difference: diff,
			KeyValues: keyValues,
		})
		res.matchedB = append(res.matchedB, id)
	}
	return res
}

// classify implements the §4.7 classification table. limite is the
// configured immaterial-difference threshold; zero disables that branch.
func classify(hasA, hasB bool, diff, absDiff, eps, limite float64) (status, grupo string) {
	switch {
	case hasA && hasB && absDiff <= eps:
		return domain.StatusConciliado, domain.GrupoConciliado
	case hasA && hasB && limite > 0 && absDiff <= limite:
		return domain.StatusEncontradoDiferenca, domain.GrupoDiferencaImaterial
	case hasA && hasB && diff > 0:
		return domain.StatusEncontradoDiferenca, domain.GrupoBaseAMaior
	case hasA && hasB:
		return domain.StatusEncontradoDiferenca, domain.GrupoBaseBMaior
	default:
		return domain.StatusNaoEncontrado, domain.GrupoNaoEncontrado
	}
}

// processGroupsSynchronous is the fallback path: classify every group in
// the calling goroutine, in order.
func processGroupsSynchronous(groups []matchGroup, opts groupProcessorOpts) groupResult {
	var merged groupResult
	for _, g := range groups {
		r := classifyGroup(g, opts)
		merged.rows = append(merged.rows, r.rows...)
		merged.matchedA = append(merged.matchedA, r.matchedA...)
		merged.matchedB = append(merged.matchedB, r.matchedB...)
	}
	return merged
}

// processGroupsParallel partitions groups round-robin across poolSize
// workers and merges their output in dispatch order, per §4.10. Output is
// identical (as multisets) to processGroupsSynchronous for the same input —
// each chunk writes into a pre-sized slot so the final concatenation never
// depends on goroutine completion order.
func processGroupsParallel(groups []matchGroup, opts groupProcessorOpts, poolSize int) groupResult {
	if poolSize < 1 {
		poolSize = 1
	}
	if poolSize > len(groups) {
		poolSize = len(groups)
	}
	if poolSize <= 1 {
		return processGroupsSynchronous(groups, opts)
	}

	chunks := partitionRoundRobin(groups, poolSize)
	chunkResults := make([]groupResult, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []matchGroup) {
			defer wg.Done()
			chunkResults[i] = processGroupsSynchronous(chunk, opts)
		}(i, chunk)
	}
	wg.Wait()

	var merged groupResult
	for _, r := range chunkResults {
		merged.rows = append(merged.rows, r.rows...)
		merged.matchedA = append(merged.matchedA, r.matchedA...)
		merged.matchedB = append(merged.matchedB, r.matchedB...)
	}
	return merged
}

// partitionRoundRobin splits groups into n chunks by round-robin
// assignment, preserving each chunk's relative order so dispatch order is
// reconstructible from chunk index alone.
func partitionRoundRobin(groups []matchGroup, n int) [][]matchGroup {
	chunks := make([][]matchGroup, n)
	for i, g := range groups {
		idx := i % n
		chunks[idx] = append(chunks[idx], g)
	}
	return chunks
}
