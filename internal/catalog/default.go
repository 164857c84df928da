package catalog

// defaultStages mirrors the deployment topology the build system reports
// against. Kept in rollout order: preflight, then tests, then production.
var defaultStages = []Stage{
	{Name: "component", Class: ClassPreflight},
	{Name: "system-test", Class: ClassIntegrationTest, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvTest, "us-east-1"},
		VariantCD:   {EnvTest, "cd-us-central-1"},
	}},
	{Name: "staging-test", Class: ClassStagingTest, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvStaging, "us-east-3"},
		VariantCD:   {EnvStaging, "cd-us-central-1"},
	}},
	{Name: "production-corp-us-east-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "corp-us-east-1"},
	}},
	{Name: "production-us-east-3", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "us-east-3"},
	}},
	{Name: "production-us-west-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "us-west-1"},
	}},
	{Name: "production-us-central-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "us-central-1"},
	}},
	{Name: "production-ap-northeast-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "ap-northeast-1"},
	}},
	{Name: "production-ap-northeast-2", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "ap-northeast-2"},
	}},
	{Name: "production-ap-southeast-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "ap-southeast-1"},
	}},
	{Name: "production-eu-west-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantMain: {EnvProduction, "eu-west-1"},
	}},
	{Name: "production-cd-us-central-1", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantCD: {EnvProduction, "cd-us-central-1"},
	}},
	{Name: "production-cd-us-central-2", Class: ClassProduction, Zones: map[SystemVariant]Zone{
		VariantCD: {EnvProduction, "cd-us-central-2"},
	}},
}

var defaultCatalog *Catalog

func init() {
	c, err := New(defaultStages)
	if err != nil {
		panic("invalid built-in stage table: " + err.Error())
	}
	defaultCatalog = c
}

// Default returns the built-in stage table.
func Default() *Catalog { return defaultCatalog }
