package notifications

// Route sends every notification at or above MinSeverity to Sender,
// rendered in Format.
type Route struct {
	Sender      Sender
	Format      Format
	MinSeverity Severity
}

// delivery is one notification bound for one sender.
type delivery struct {
	route        Route
	notification Notification
}
