package seeder

func Defaults() []Seeder {
	return []Seeder{
		ProfilesSeeder{Profiles: DemoProfiles()},
		SuggestionsSeeder{Pairs: [][2]string{{"demo-m-01", "demo-f-03"}}},
	}
}
