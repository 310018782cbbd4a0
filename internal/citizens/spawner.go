package citizens

import (
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/spatial"
)

// spawner creates residents with demographics, education and starting needs.
type spawner struct {
	rng   entropy.Source
	alloc ids.Allocator
	cfg   *Config
}

func (s *spawner) adult(homeID string, home spatial.Vec3) *Citizen {
	c := s.base(homeID, home)
	c.Age = s.weightedAge()
	c.Education = Education(entropy.Pick(s.rng, s.cfg.EducationWeights[:]))
	c.Wealth = s.startingWealth(c.Education)
	return c
}

func (s *spawner) child(parent *Citizen) *Citizen {
	c := s.base(parent.HomeID, parent.Home)
	c.Age = 0
	c.Education = EducationNone
	return c
}

func (s *spawner) base(homeID string, home spatial.Vec3) *Citizen {
	c := &Citizen{
		ID:     s.alloc.Next("cit"),
		Name:   s.name(),
		HomeID: homeID,
		Home:   home,
		// Mostly met at move-in.
		Needs: Needs{
			Food:          entropy.Range(s.rng, 50, 70),
			Health:        entropy.Range(s.rng, 60, 80),
			Entertainment: entropy.Range(s.rng, 40, 60),
			Safety:        entropy.Range(s.rng, 50, 70),
			Employment:    100,
		},
		Personality: Personality{
			Openness:    s.rng.Float64(),
			Diligence:   s.rng.Float64(),
			Sociability: s.rng.Float64(),
			Ambition:    s.rng.Float64(),
		},
	}
	c.Happiness = c.Needs.Mean()
	return c
}

// weightedAge is a bell curve centred on 34. Newcomers arrive with at least
// five working years left; retirees only come from aging residents.
func (s *spawner) weightedAge() float64 {
	return mathx.Clamp(34+s.rng.NormFloat64()*14, s.cfg.WorkingAge[0], s.cfg.WorkingAge[1]-5)
}

func (s *spawner) startingWealth(e Education) float64 {
	lo, hi := s.cfg.WealthRange[0], s.cfg.WealthRange[1]
	if hi <= lo {
		return lo
	}
	return entropy.Range(s.rng, lo, hi) * (1 + 0.25*float64(e))
}

func (s *spawner) name() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var firstNames = []string{
	"Ada", "Bruno", "Camila", "Dev", "Elena", "Felix", "Grace", "Hassan",
	"Ines", "Jonah", "Keiko", "Luca", "Maya", "Nadia", "Omar", "Priya",
	"Quentin", "Rosa", "Samir", "Tara", "Umberto", "Vera", "Wei", "Ximena",
	"Yusuf", "Zoe", "Andre", "Bea", "Carlos", "Dara", "Emil", "Fatima",
	"Gus", "Hana", "Ivo", "Jade", "Kofi", "Lena", "Marco", "Nell",
}

var lastNames = []string{
	"Alvarez", "Becker", "Chen", "Dubois", "Eriksen", "Fischer", "Garcia",
	"Haddad", "Ivanova", "Jensen", "Kowalski", "Lindqvist", "Moreau",
	"Nakamura", "Okafor", "Petrov", "Quinn", "Rossi", "Schmidt", "Tanaka",
	"Umarov", "Varga", "Walsh", "Xu", "Yilmaz", "Zhang", "Holloway",
	"Mercer", "Harper", "Caldwell", "Thatcher", "Ward", "Cross", "Farrow",
}
