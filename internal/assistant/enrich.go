package assistant

import "fmt"

const pricingPath = "/pricing"

// enrichRoute derives the UI affordances for a route directive. Pure.
func enrichRoute(r RouteDirective) (*Link, *FollowUp) {
	label := r.Label()
	link := &Link{Href: r.Target(), Label: label}
	followUp := &FollowUp{
		Content: fmt.Sprintf("Want to keep your %s repair plan handy? Pro members can save it to their garage and export any guide as a PDF.", label),
		Link:    &Link{Href: pricingPath, Label: "See Pro features"},
	}
	return link, followUp
}

// routeOnlyReply fills in visible text when the model answered with
// nothing but the tag.
func routeOnlyReply(r RouteDirective) string {
	return fmt.Sprintf("Let's get your %s sorted. I'll take you to its repair hub.", r.Label())
}

// upgradeOnlyReply fills in visible text when the model answered with
// nothing but an upgrade tag.
func upgradeOnlyReply() string {
	return "That's part of Pro. You can compare plans at " + pricingPath + "."
}
