package models

// All — список моделей для AutoMigrate.
func All() []any {
	return []any{
		&DeviceType{},
		&Device{},
		&Target{},
		&Template{},
		&VariableDefinition{},
		&GlobalVariable{},
		&ConfigVersion{},
		&ConfigVersionScope{},
		&DeviceConfigAssignment{},
		&ProvisioningLog{},
	}
}
