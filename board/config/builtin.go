package config

// BuiltinCatalog returns the languages offered when no catalog file exists
func BuiltinCatalog() Catalog {
	return Catalog{
		Default: "python",
		Languages: []Language{
			{Name: "python", Label: "Python", Version: "3.10.0"},
			{Name: "javascript", Label: "JavaScript", Version: "16.3.0"},
			{Name: "typescript", Label: "TypeScript", Version: "4.2.3"},
			{Name: "java", Label: "Java", Version: "15.0.2"},
			{Name: "cpp", Label: "C++", Version: "10.2.0"},
			{Name: "c", Label: "C", Version: "10.2.0"},
			{Name: "go", Label: "Go", Version: "1.16.2"},
			{Name: "ruby", Label: "Ruby", Version: "3.0.0"},
			{Name: "php", Label: "PHP", Version: "8.0.0"},
			{Name: "rust", Label: "Rust", Version: "1.52.1"},
			{Name: "kotlin", Label: "Kotlin", Version: "1.4.21"},
			{Name: "swift", Label: "Swift", Version: "5.3.3"},
			{Name: "scala", Label: "Scala", Version: "2.13.4"},
			{Name: "perl", Label: "Perl", Version: "5.32.0"},
			{Name: "r", Label: "R", Version: "4.0.4"},
		},
	}
}
