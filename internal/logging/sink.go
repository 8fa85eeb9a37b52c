package logging

import "os"

// stderr is the log sink; tests swap it to capture output.
var stderr = os.Stderr
