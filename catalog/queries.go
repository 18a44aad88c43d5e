package catalog

// GraphQL documents used against the catalog API.

const searchMonitorsQuery = `
query searchMonitors($start: Int!, $count: Int!) {
  searchAcrossEntities(input: {
    types: [MONITOR],
    query: "*",
    start: $start,
    count: $count,
    searchFlags: { skipCache: true }
  }) {
    start
    count
    total
    searchResults {
      entity {
        urn
        type
        ... on Monitor {
          info {
            type
            assertionMonitor {
              assertions {
                assertion {
                  urn
                  info {
                    type
                    freshnessAssertion {
                      type
                      entityUrn
                      schedule {
                        type
                        cron {
                          cron
                          timezone
                          windowStartOffsetMs
                        }
                        fixedInterval {
                          unit
                          multiple
                        }
                      }
                    }
                  }
                  relationships(input: { types: ["Asserts"], direction: OUTGOING }) {
                    relationships {
                      entity {
                        urn
                        type
                        ... on Dataset {
                          platform {
                            urn
                          }
                          subTypes {
                            typeNames
                          }
                        }
                      }
                    }
                  }
                }
                schedule {
                  cron
                  timezone
                }
                parameters {
                  type
                  datasetFreshnessParameters {
                    sourceType
                    field {
                      path
                      type
                      nativeType
                    }
                    auditLog {
                      operationTypes
                      userName
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`

const listIngestionSourcesQuery = `
query listIngestionSources($start: Int!, $count: Int!) {
  listIngestionSources(input: { start: $start, count: $count }) {
    start
    count
    total
    ingestionSources {
      urn
      type
      name
      config {
        recipe
        executorId
      }
    }
  }
}
`

const getSecretValuesQuery = `
query getSecretValues($secrets: [String!]!) {
  getSecretValues(input: { secrets: $secrets }) {
    name
    value
  }
}
`
