// Package powerwall is a client for the local HTTPS API of a Tesla Powerwall
// Backup Gateway.
//
// A Client holds one session with one gateway. It logs in with the customer
// (or another) role, keeps the session cookies the gateway hands out, and
// exposes typed accessors over the gateway's JSON resources: state of energy,
// meter aggregates, grid status, site info, site controller state, firmware
// status and more.
//
// # Response Models
//
// Responses are kept as decoded JSON and read lazily. Every accessor returns
// an error of kind ErrKindMissingAttribute when the field is absent or null,
// so a firmware update that drops a field breaks only the callers that read
// it:
//
//	meters, err := client.GetMeters(ctx)
//	if err != nil {
//	    return err
//	}
//	site, err := meters.Site()
//	if err != nil {
//	    return err
//	}
//	kw, err := site.Power(powerwall.DefaultKWPrecision)
//
// # Firmware Versions
//
// Some resources moved between firmware releases. Operations that depend on
// the firmware version consult a VersionGate: with a pinned version the code
// path is chosen locally, otherwise the version is read from /api/status on
// every call.
//
//	client, err := powerwall.New("192.168.91.1", powerwall.WithPinnedVersion("21.44.1"))
//
// # Errors
//
// All failures are *Error values; use the Is* predicates (IsUnreachable,
// IsAccessDenied, IsMissingAttribute, ...) to branch on the kind.
//
// # Usage Example
//
//	client, err := powerwall.New("192.168.91.1", powerwall.WithTimeout(5*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := client.Login(ctx, "me@example.com", "ABCDE", false); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Logout(ctx)
//
//	charge, err := client.GetCharge(ctx)
package powerwall
