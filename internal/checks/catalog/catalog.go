// Package catalog holds the built-in checks. Each one runs a single AWS Config
// advanced query scoped to the subscription (account) being scanned.
package catalog

import (
	"slices"
	"strings"

	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/results"
)

const docsBase = "https://docs.aws.amazon.com/wellarchitected/latest/framework/"

func accountQuery(resourceType, fields string) string {
	return "SELECT resourceId, resourceName, arn, " + fields +
		" WHERE resourceType = '" + resourceType + "' AND accountId = '{subscriptionId}'"
}

// Definitions returns fresh copies of every built-in check.
func Definitions() []checks.Definition {
	return []checks.Definition{
		{
			ID:                "RE01",
			Pillar:            results.PillarReliability,
			Title:             "RDS instances are deployed Multi-AZ",
			Description:       "Single-AZ database instances are lost with their availability zone.",
			Severity:          results.SeverityHigh,
			RemediationEffort: checks.EffortMedium,
			Tags:              []string{"rds", "availability"},
			DocumentationURL:  docsBase + "rel_fault_isolation_multiaz_region_system.html",
			Evaluator: QueryCheck{
				Query:          accountQuery("AWS::RDS::DBInstance", "configuration.multiAZ"),
				Resource:       "RDS instances",
				Compliant:      func(r checks.Row) bool { return r.Bool("configuration.multiAZ") },
				Violation:      results.StatusFail,
				Recommendation: "Enable Multi-AZ deployment on production database instances.",
				RemediationScript: `
aws rds modify-db-instance --db-instance-identifier <id> --multi-az --apply-immediately`,
			},
		},
		{
			ID:                "RE05",
			Pillar:            results.PillarReliability,
			Title:             "Auto Scaling groups span multiple availability zones",
			Severity:          results.SeverityMedium,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"autoscaling", "availability"},
			DocumentationURL:  docsBase + "rel_fault_isolation_multiaz_region_system.html",
			Evaluator: QueryCheck{
				Query:          accountQuery("AWS::AutoScaling::AutoScalingGroup", "configuration.availabilityZones"),
				Resource:       "Auto Scaling groups",
				Compliant:      func(r checks.Row) bool { return r.Len("configuration.availabilityZones") >= 2 },
				Violation:      results.StatusWarning,
				Recommendation: "Add at least one more availability zone to each Auto Scaling group.",
			},
		},
		{
			ID:                "SE01",
			Pillar:            results.PillarSecurity,
			Title:             "S3 buckets block public access",
			Description:       "Buckets without a public access block can be exposed by a single ACL or policy change.",
			Severity:          results.SeverityCritical,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"s3", "data-protection"},
			DocumentationURL:  docsBase + "sec_protect_data_rest_access_control.html",
			Evaluator: QueryCheck{
				Query:    accountQuery("AWS::S3::Bucket", "supplementaryConfiguration.PublicAccessBlockConfiguration"),
				Resource: "S3 buckets",
				Compliant: func(r checks.Row) bool {
					const p = "supplementaryConfiguration.PublicAccessBlockConfiguration."
					return r.Bool(p+"blockPublicAcls") && r.Bool(p+"blockPublicPolicy") &&
						r.Bool(p+"ignorePublicAcls") && r.Bool(p+"restrictPublicBuckets")
				},
				Violation:      results.StatusFail,
				Recommendation: "Enable all four S3 Block Public Access settings on each bucket.",
				RemediationScript: `
aws s3api put-public-access-block --bucket <name> \
  --public-access-block-configuration BlockPublicAcls=true,IgnorePublicAcls=true,BlockPublicPolicy=true,RestrictPublicBuckets=true`,
			},
		},
		{
			ID:                "SE05",
			Pillar:            results.PillarSecurity,
			Title:             "EBS volumes are encrypted at rest",
			Severity:          results.SeverityHigh,
			RemediationEffort: checks.EffortHigh,
			Tags:              []string{"ebs", "encryption", "data-protection"},
			DocumentationURL:  docsBase + "sec_protect_data_rest_encrypt.html",
			Evaluator: QueryCheck{
				Query:          accountQuery("AWS::EC2::Volume", "configuration.encrypted"),
				Resource:       "EBS volumes",
				Compliant:      func(r checks.Row) bool { return r.Bool("configuration.encrypted") },
				Violation:      results.StatusFail,
				Recommendation: "Enable EBS encryption by default and migrate unencrypted volumes through encrypted snapshots.",
				RemediationScript: `
aws ec2 enable-ebs-encryption-by-default`,
			},
		},
		{
			ID:                "CO01",
			Pillar:            results.PillarCost,
			Title:             "No unattached EBS volumes",
			Severity:          results.SeverityMedium,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"ebs", "waste"},
			DocumentationURL:  docsBase + "cost_decomissioning_resources_implement_process.html",
			Evaluator: QueryCheck{
				Query:    accountQuery("AWS::EC2::Volume", "configuration.state"),
				Resource: "EBS volumes",
				Compliant: func(r checks.Row) bool {
					return !strings.EqualFold(r.Text("configuration.state"), "available")
				},
				Violation:      results.StatusWarning,
				Recommendation: "Snapshot and delete volumes that are not attached to any instance.",
			},
		},
		{
			ID:                "CO03",
			Pillar:            results.PillarCost,
			Title:             "No idle Elastic IP addresses",
			Severity:          results.SeverityLow,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"ec2", "waste"},
			DocumentationURL:  docsBase + "cost_decomissioning_resources_implement_process.html",
			Evaluator: QueryCheck{
				Query:          accountQuery("AWS::EC2::EIP", "configuration.associationId"),
				Resource:       "Elastic IP addresses",
				Compliant:      func(r checks.Row) bool { return r.Text("configuration.associationId") != "" },
				Violation:      results.StatusWarning,
				Recommendation: "Release Elastic IP addresses that are not associated with a running resource.",
				RemediationScript: `
aws ec2 release-address --allocation-id <id>`,
			},
		},
		{
			ID:                "OE04",
			Pillar:            results.PillarOperations,
			Title:             "CloudTrail trails record every region",
			Severity:          results.SeverityHigh,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"cloudtrail", "audit"},
			DocumentationURL:  docsBase + "ops_telemetry_application_telemetry.html",
			Evaluator: QueryCheck{
				Query:          accountQuery("AWS::CloudTrail::Trail", "configuration.isMultiRegionTrail"),
				Resource:       "CloudTrail trails",
				Compliant:      func(r checks.Row) bool { return r.Bool("configuration.isMultiRegionTrail") },
				Violation:      results.StatusFail,
				Recommendation: "Convert trails to multi-region trails so activity in new regions is captured.",
				RemediationScript: `
aws cloudtrail update-trail --name <name> --is-multi-region-trail`,
			},
		},
		{
			ID:                "OE08",
			Pillar:            results.PillarOperations,
			Title:             "Compute and database resources carry an owner tag",
			Severity:          results.SeverityLow,
			RemediationEffort: checks.EffortMedium,
			Tags:              []string{"tagging", "governance"},
			DocumentationURL:  docsBase + "ops_ops_model_def_resource_owners.html",
			Evaluator: QueryCheck{
				Query: "SELECT resourceId, resourceName, arn, tags" +
					" WHERE resourceType IN ('AWS::EC2::Instance', 'AWS::RDS::DBInstance') AND accountId = '{subscriptionId}'",
				Resource:       "tagged resources",
				Compliant:      hasTag("owner"),
				Violation:      results.StatusWarning,
				Recommendation: "Tag every instance and database with an owner so incidents reach a responsible team.",
			},
		},
		{
			ID:                "PE02",
			Pillar:            results.PillarPerformance,
			Title:             "EC2 instances use current generation types",
			Severity:          results.SeverityMedium,
			RemediationEffort: checks.EffortMedium,
			Tags:              []string{"ec2", "right-sizing"},
			DocumentationURL:  docsBase + "perf_select_compute_use_compute_options.html",
			Evaluator: QueryCheck{
				Query:    accountQuery("AWS::EC2::Instance", "configuration.instanceType"),
				Resource: "EC2 instances",
				Compliant: func(r checks.Row) bool {
					family, _, _ := strings.Cut(r.Text("configuration.instanceType"), ".")
					return !slices.Contains(previousGenerationFamilies, strings.ToLower(family))
				},
				Violation:      results.StatusWarning,
				Recommendation: "Move previous generation instances to a current generation family.",
			},
		},
		{
			ID:                "PE05",
			Pillar:            results.PillarPerformance,
			Title:             "EBS volumes use gp3 rather than gp2",
			Severity:          results.SeverityLow,
			RemediationEffort: checks.EffortLow,
			Tags:              []string{"ebs", "right-sizing"},
			DocumentationURL:  docsBase + "perf_right_storage_solution_understand_char.html",
			Evaluator: QueryCheck{
				Query:    accountQuery("AWS::EC2::Volume", "configuration.volumeType"),
				Resource: "EBS volumes",
				Compliant: func(r checks.Row) bool {
					return !strings.EqualFold(r.Text("configuration.volumeType"), "gp2")
				},
				Violation:      results.StatusWarning,
				Recommendation: "Modify gp2 volumes to gp3 for independent throughput and IOPS.",
				RemediationScript: `
aws ec2 modify-volume --volume-id <id> --volume-type gp3`,
			},
		},
	}
}

var previousGenerationFamilies = []string{
	"t1", "m1", "m2", "m3", "c1", "c3", "cc2", "cg1", "cr1", "g2", "hi1", "hs1", "i2", "r3",
}

// hasTag matches rows whose tag list (Config's [{key, value}] form) carries key.
func hasTag(key string) func(checks.Row) bool {
	return func(r checks.Row) bool {
		v, ok := r.Lookup("tags")
		if !ok {
			return false
		}
		list, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			tag, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if k, _ := tag["key"].(string); strings.EqualFold(k, key) {
				return true
			}
		}
		return false
	}
}

// Register adds every built-in check to reg.
func Register(reg *checks.Registry) error {
	for _, def := range Definitions() {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in checks.
func NewRegistry() (*checks.Registry, error) {
	reg := checks.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
