package models

// Role names match the seeded lookup values; levels order them for
// privilege comparisons (higher level covers anything below it).
const (
    RoleEstudiante = "ESTUDIANTE"
    RoleDocente    = "DOCENTE"
    RoleJefeLab    = "JEFE_LAB"
    RoleAdmin      = "ADMIN"
)

var roleLevels = map[string]int{
    RoleEstudiante: 1,
    RoleDocente:    2,
    RoleJefeLab:    3,
    RoleAdmin:      4,
}

func IsValidRole(role string) bool {
    _, ok := roleLevels[role]
    return ok
}

// RoleLevel returns 0 for unknown roles.
func RoleLevel(role string) int {
    return roleLevels[role]
}
