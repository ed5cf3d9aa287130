package jobs

import "time"

const (
	Interpol Profession = "interpol"
	Selfmade Profession = "selfmade"
)

var standardSalary = []Range{
	{10, 20}, {20, 35}, {35, 55}, {55, 85}, {85, 130},
	{130, 200}, {200, 300}, {300, 450}, {450, 650}, {650, 1000},
}

var selfmadeSalary = []Range{
	{5, 10}, {8, 15}, {12, 20}, {18, 30}, {25, 40}, {35, 55},
}

var standardChance = []float64{0.05, 0.045, 0.04, 0.035, 0.03, 0.025, 0.022, 0.02, 0.018, 0.015}

// Zero at the top level: the standard tables plateau there.
var standardGuaranteed = []int{20, 25, 30, 35, 40, 45, 50, 55, 60, 0}

var standardCooldown = []time.Duration{
	time.Hour, time.Hour,
	90 * time.Minute, 90 * time.Minute,
	2 * time.Hour, 2 * time.Hour,
	3 * time.Hour, 3 * time.Hour,
	4 * time.Hour, 4 * time.Hour,
}

const selfmadeCooldown = 30 * time.Minute

type professionSeed struct {
	id     Profession
	name   string
	emoji  string
	titles []string
}

var standardProfessions = []professionSeed{
	{Interpol, "Interpol", "🚔", []string{
		"Trainee", "Junior Interpol Officer", "Interpol Officer", "Duty Officer", "Senior Duty Officer",
		"Inspector", "Senior Inspector", "Deputy Head of Interpol", "First Deputy Head", "Head of Interpol",
	}},
	{"banker", "Banking", "🏦", []string{
		"Trainee", "Bank Accountant", "Senior Accountant", "Banker", "Senior Banker",
		"Deputy Chief Banker", "First Deputy Chief Banker", "Chief Banker", "First Deputy Head of Economy", "Head of Economy",
	}},
	{"infrastructure", "Infrastructure", "🏗️", []string{
		"Resource Gatherer", "Senior Gatherer", "Builder", "Master Builder", "Keeper",
		"Senior Keeper", "Spawn Manager", "Deputy Head of Infrastructure", "First Deputy Head", "Head of Infrastructure",
	}},
	{"court", "Court", "⚖️", []string{
		"Trainee", "Judge's Assistant", "Junior Judge", "Judge", "District Judge",
		"Senior Judge", "Appeals Judge", "Deputy Chief Judge", "First Deputy Chief Justice", "Chief Justice",
	}},
	{"culture", "Culture", "🎭", []string{
		"Trainee", "Event Maker", "Senior Event Maker", "Event Organizer", "Creative Director",
		"Lead Event Maker", "Producer", "Deputy Head of Culture", "First Deputy Head", "Head of Culture",
	}},
	{"medic", "Medicine", "🏥", []string{
		"Orderly", "Nurse", "Paramedic", "Physician", "Surgeon",
		"Head of Department", "Chief Physician", "Deputy Health Minister", "First Deputy Minister", "Health Minister",
	}},
	{"teacher", "Education", "📚", []string{
		"Student Teacher", "Tutor", "Primary Teacher", "Middle School Teacher", "High School Teacher",
		"Vice Principal", "Principal", "Deputy Education Minister", "First Deputy Minister", "Education Minister",
	}},
	{"journalist", "Journalism", "📰", []string{
		"Newsroom Intern", "Correspondent", "Reporter", "News Anchor", "Section Editor",
		"Managing Editor", "Editor in Chief", "Deputy Media Director", "Media Director", "Media Mogul",
	}},
	{"transport", "Transport", "🚂", []string{
		"Conductor", "Bus Driver", "Metro Driver", "Helicopter Pilot", "Ship Captain",
		"Airline Captain", "Depot Chief", "Deputy Transport Minister", "First Deputy Minister", "Transport Minister",
	}},
	{"security", "Security", "🛡️", []string{
		"Guard", "Senior Guard", "Shift Supervisor", "Bodyguard", "VIP Bodyguard",
		"Head of Security", "Security Service Chief", "Deputy Agency Director", "Agency Director", "Security Holding Owner",
	}},
	{"chef", "Cuisine", "👨‍🍳", []string{
		"Dishwasher", "Kitchen Helper", "Cook", "Senior Cook", "Sous Chef",
		"Chef", "Restaurant Chef", "Chain Brand Chef", "Celebrity Chef", "Michelin Star Chef",
	}},
	{"artist", "Art", "🎨", []string{
		"Aspiring Artist", "Street Artist", "Illustrator", "Designer", "Art Director",
		"Renowned Artist", "Gallerist", "Gallery Owner", "Art Collector", "Art Legend",
	}},
	{"scientist", "Science", "🔬", []string{
		"Lab Assistant", "Junior Researcher", "Researcher", "Senior Researcher", "Lead Researcher",
		"Lab Head", "Professor", "Academician", "Institute Director", "Nobel Laureate",
	}},
	{"programmer", "IT", "💻", []string{
		"Junior", "Middle", "Senior", "Team Lead", "Tech Lead",
		"Architect", "Engineering Manager", "Head of Engineering", "CTO", "Tech Visionary",
	}},
	{"lawyer", "Law", "📜", []string{
		"Paralegal", "Legal Assistant", "Junior Lawyer", "Lawyer", "Senior Lawyer",
		"Partner", "Managing Partner", "Firm Founder", "Deputy Attorney General", "Attorney General",
	}},
	{"athlete", "Sport", "🏅", []string{
		"Amateur", "Club Player", "Semi-Pro", "Professional", "Team Captain",
		"National Team Player", "Champion", "World Champion", "Olympic Champion", "Sports Legend",
	}},
	{"streamer", "Streaming", "🎮", []string{
		"Newbie Streamer", "Small Streamer", "Growing Streamer", "Partner", "Popular Streamer",
		"Top Streamer", "Influencer", "Media Personality", "Streaming Star", "Streaming Legend",
	}},
}

var selfmadeTitles = []string{"Beggar", "Hustler", "Pigeon", "Trusted Guy", "Sharp Kid", "Favourite Son"}

// DefaultDescriptors returns a fresh copy of the built-in profession table.
func DefaultDescriptors() []Descriptor {
	out := make([]Descriptor, 0, len(standardProfessions)+1)
	for i, seed := range standardProfessions {
		levels := make([]LevelSpec, len(seed.titles))
		for j, title := range seed.titles {
			levels[j] = LevelSpec{
				Title:           title,
				Salary:          standardSalary[j],
				Cooldown:        standardCooldown[j],
				PromotionChance: standardChance[j],
				GuaranteedAfter: standardGuaranteed[j],
			}
		}
		out = append(out, Descriptor{
			ID:      seed.id,
			Name:    seed.name,
			Emoji:   seed.emoji,
			CanFine: seed.id == Interpol,
			Levels:  levels,
		})
		if i == 4 {
			out = append(out, selfmadeDescriptor())
		}
	}
	return out
}

func selfmadeDescriptor() Descriptor {
	levels := make([]LevelSpec, len(selfmadeTitles))
	for j, title := range selfmadeTitles {
		levels[j] = LevelSpec{
			Title:           title,
			Salary:          selfmadeSalary[j],
			Cooldown:        selfmadeCooldown,
			PromotionChance: standardChance[j],
			GuaranteedAfter: standardGuaranteed[j],
		}
	}
	return Descriptor{
		ID:     Selfmade,
		Name:   "Selfmade",
		Emoji:  "💰",
		Trap:   true,
		Levels: levels,
	}
}

// DefaultRegistry builds the registry from the built-in table. The table is
// validated by tests, so a failure here is a programming error.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDescriptors())
	if err != nil {
		panic(err)
	}
	return r
}
