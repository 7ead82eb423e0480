/*
Package ddns keeps a cPanel-hosted DNS "A" record pointed at the caller's public IP address.

Usage will always start with [ddns.New],
which returns the DDNSClient implementation.
New requires the zone and record name to update, a DNS provider ([UsingCPanel]) and an IP cache ([UsingFileCache]).
Additional client configuration options are listed in the docs for New.

Each call to RunDDNS performs a single synchronization and returns.
Scheduling is left to cron, a systemd timer or similar.
*/
package ddns
