package services

import (
	"context"
	"errand-route-service/internal/domain"
	"math/rand/v2"
)

type individual struct {
	genes []int
	cost  int
}

// geneticSearch evolves destination orders with order crossover, swap
// mutation and roulette-wheel selection (fitness 1/(1+cost)). The population
// is seeded with seed plus random permutations, the best individual always
// survives, and the best order seen is returned when generations or ctx run out.
func geneticSearch(
	ctx context.Context,
	m *domain.CostMatrix,
	c domain.Criterion,
	seed []int,
	cfg OptimizerConfig,
	rng *rand.Rand,
) []int {
	d := len(seed)
	if d < 3 {
		return append([]int(nil), seed...)
	}

	pop := make([]individual, 0, cfg.GAPopulation)
	pop = append(pop, newIndividual(m, c, append([]int(nil), seed...)))
	for len(pop) < cfg.GAPopulation {
		genes := append([]int(nil), seed...)
		rng.Shuffle(d, func(i, j int) { genes[i], genes[j] = genes[j], genes[i] })
		pop = append(pop, newIndividual(m, c, genes))
	}

	best := fittest(pop)

	for gen := 0; gen < cfg.GAGenerations; gen++ {
		if ctx.Err() != nil {
			break
		}

		next := make([]individual, 0, len(pop))
		next = append(next, best)

		wheel := rouletteWheel(pop)
		for len(next) < len(pop) {
			p1 := pop[spin(wheel, rng)]
			p2 := pop[spin(wheel, rng)]
			child := orderCrossover(p1.genes, p2.genes, rng)
			swapMutate(child, cfg.GAMutationRate, rng)
			next = append(next, newIndividual(m, c, child))
		}

		pop = next
		if f := fittest(pop); f.cost < best.cost {
			best = f
		}
	}

	return append([]int(nil), best.genes...)
}

func newIndividual(m *domain.CostMatrix, c domain.Criterion, genes []int) individual {
	return individual{genes: genes, cost: orderCost(m, genes, c)}
}

func fittest(pop []individual) individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.cost < best.cost {
			best = ind
		}
	}
	return best
}

// rouletteWheel returns cumulative fitness values.
func rouletteWheel(pop []individual) []float64 {
	wheel := make([]float64, len(pop))
	total := 0.0
	for i, ind := range pop {
		total += 1 / (1 + float64(ind.cost))
		wheel[i] = total
	}
	return wheel
}

func spin(wheel []float64, rng *rand.Rand) int {
	r := rng.Float64() * wheel[len(wheel)-1]
	lo, hi := 0, len(wheel)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if wheel[mid] < r {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// orderCrossover copies a random slice of p1 and fills the remaining
// positions with p2's genes in p2's order, starting after the slice.
func orderCrossover(p1, p2 []int, rng *rand.Rand) []int {
	d := len(p1)
	a, b := rng.IntN(d), rng.IntN(d)
	if a > b {
		a, b = b, a
	}

	child := make([]int, d)
	taken := make(map[int]struct{}, b-a+1)
	for i := a; i <= b; i++ {
		child[i] = p1[i]
		taken[p1[i]] = struct{}{}
	}

	pos := (b + 1) % d
	for k := 0; k < d; k++ {
		g := p2[(b+1+k)%d]
		if _, ok := taken[g]; ok {
			continue
		}
		child[pos] = g
		pos = (pos + 1) % d
	}
	return child
}

func swapMutate(genes []int, rate float64, rng *rand.Rand) {
	for i := range genes {
		if rng.Float64() < rate {
			j := rng.IntN(len(genes))
			genes[i], genes[j] = genes[j], genes[i]
		}
	}
}
