package taxonomy

import (
	"context"
	"fmt"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// DefaultVocabulary is the approved starter vocabulary installed into an empty taxonomy.
func DefaultVocabulary() []models.Technology {
	type entry struct {
		name     string
		key      string
		category models.TechnologyCategory
		aliases  []string
	}

	entries := []entry{
		{"Java", "java", models.CategoryLanguage, []string{"J2EE", "Jakarta EE", "JEE"}},
		{"Python", "python", models.CategoryLanguage, []string{"Python3"}},
		{"Golang", "golang", models.CategoryLanguage, []string{"Go language"}},
		{"JavaScript", "javascript", models.CategoryLanguage, []string{"JS", "ECMAScript"}},
		{"TypeScript", "typescript", models.CategoryLanguage, nil},
		{"C#", "csharp", models.CategoryLanguage, []string{"CSharp"}},
		{".NET", "dotnet", models.CategoryFramework, []string{"dotnet", ".NET Core", "ASP.NET"}},
		{"Spring", "spring", models.CategoryFramework, []string{"Spring Framework"}},
		{"Spring Boot", "spring-boot", models.CategoryFramework, nil},
		{"React", "react", models.CategoryFramework, []string{"ReactJS", "React.js"}},
		{"Angular", "angular", models.CategoryFramework, []string{"AngularJS"}},
		{"Node.js", "nodejs", models.CategoryPlatform, []string{"NodeJS"}},
		{"Kubernetes", "kubernetes", models.CategoryPlatform, []string{"K8s", "EKS", "AKS", "GKE"}},
		{"Docker", "docker", models.CategoryTool, nil},
		{"Terraform", "terraform", models.CategoryTool, nil},
		{"Ansible", "ansible", models.CategoryTool, nil},
		{"Jenkins", "jenkins", models.CategoryTool, nil},
		{"GitLab", "gitlab", models.CategoryTool, []string{"GitLab CI"}},
		{"Jira", "jira", models.CategoryTool, nil},
		{"ServiceNow", "servicenow", models.CategoryPlatform, nil},
		{"Salesforce", "salesforce", models.CategoryPlatform, nil},
		{"PostgreSQL", "postgresql", models.CategoryDatabase, []string{"Postgres"}},
		{"Oracle Database", "oracle", models.CategoryDatabase, []string{"Oracle"}},
		{"MongoDB", "mongodb", models.CategoryDatabase, []string{"Mongo"}},
		{"SQL Server", "sql-server", models.CategoryDatabase, []string{"MSSQL"}},
		{"Elasticsearch", "elasticsearch", models.CategoryDatabase, []string{"Elastic", "OpenSearch"}},
		{"AWS", "aws", models.CategoryCloud, []string{"Amazon Web Services", "AWS GovCloud"}},
		{"Azure", "azure", models.CategoryCloud, []string{"Microsoft Azure", "Azure Government"}},
		{"Google Cloud", "gcp", models.CategoryCloud, []string{"GCP"}},
		{"Agile", "agile", models.CategoryMethodology, nil},
		{"Scrum", "scrum", models.CategoryMethodology, nil},
		{"SAFe", "safe", models.CategoryMethodology, []string{"Scaled Agile Framework"}},
		{"DevSecOps", "devsecops", models.CategoryMethodology, nil},
		{"DevOps", "devops", models.CategoryMethodology, nil},
		{"CI/CD", "ci-cd", models.CategoryMethodology, []string{"continuous integration"}},
		{"Microservices", "microservices", models.CategoryMethodology, []string{"microservice architecture"}},
		{"ITIL", "itil", models.CategoryMethodology, nil},
	}

	out := make([]models.Technology, 0, len(entries))
	for _, e := range entries {
		aliases := e.aliases
		if aliases == nil {
			aliases = []string{}
		}

		out = append(out, models.Technology{
			Key:      e.key,
			Name:     e.name,
			Category: e.category,
			Aliases:  aliases,
			State:    models.ApprovalApproved,
		})
	}

	return out
}

// Seed installs techs that are not yet known and returns how many were added.
func Seed(ctx context.Context, tax *Taxonomy, techs []models.Technology) (int, error) {
	added := 0

	for _, tech := range techs {
		_, created, err := tax.Add(ctx, tech)
		if err != nil {
			return added, fmt.Errorf("seed %s: %w", tech.Key, err)
		}

		if created {
			added++
		}
	}

	return added, nil
}
