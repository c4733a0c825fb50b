package synthesis

var ParseResponse = parseResponse
