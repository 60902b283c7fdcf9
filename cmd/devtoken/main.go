package main

import (
	"flag"
	"fmt"
	"log"

	"campusattendance/internal/auth"
	"campusattendance/internal/config"
	"campusattendance/internal/identity"
)

// devtoken prints a bearer token for local testing. Real tokens are issued
// by the identity service.
func main() {
	cfg := config.Load()
	sub := flag.String("sub", "", "user id (required)")
	role := flag.String("role", identity.RoleStudent, "STUDENT, HOSTELLER, DAY_SCHOLAR or ADMIN")
	category := flag.String("category", "", "student category override")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	if *sub == "" {
		log.Fatal("-sub is required")
	}
	if *role != identity.RoleAdmin && !identity.IsStudentRole(*role) {
		log.Fatalf("unknown role %q", *role)
	}

	token, exp, err := auth.Issue(*sub, *role, *category, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	log.Printf("token for %s (%s) expires %s", *sub, *role, exp.Format("2006-01-02 15:04:05"))
	fmt.Println(token)
}
